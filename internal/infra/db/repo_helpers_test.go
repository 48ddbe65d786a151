package db

import (
	"testing"

	"chainsign/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCheckID(t *testing.T) {
	assert.NoError(t, checkID(uuid.NewString(), "device"))
	for _, id := range []string{"", "missing", "abc", "00000000-0000-4000-8000"} {
		assert.ErrorIs(t, checkID(id, "device"), domain.ErrNotFound, id)
	}
}
