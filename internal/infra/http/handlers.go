package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"chainsign/internal/domain"
	"chainsign/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type registerDeviceRequest struct {
	Label     string `json:"label"`
	Algorithm string `json:"algorithm"`
}

type createTransactionRequest struct {
	DeviceID string `json:"device_id"`
	Data     string `json:"data"`
}

type deviceResponse struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	Algorithm        string `json:"algorithm"`
	PublicKey        string `json:"public_key"`
	SignatureCounter int64  `json:"signature_counter"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
}

type transactionResponse struct {
	ID                string `json:"id"`
	DeviceID          string `json:"device_id"`
	Counter           int64  `json:"counter"`
	Timestamp         string `json:"timestamp"`
	Data              string `json:"data"`
	PreviousSignature string `json:"previous_signature"`
	SignedData        string `json:"signed_data"`
	Signature         string `json:"signature"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "pass", "version": "v1", "mode": s.mode()})
}

func (s *Server) handleRegisterDevice(c *gin.Context) {
	if s.registry == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "device registry not configured")
		return
	}
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	device, err := s.registry.Register(c.Request.Context(), req.Label, req.Algorithm)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildDeviceResponse(device))
}

func (s *Server) handleListDevices(c *gin.Context) {
	if s.registry == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "device registry not configured")
		return
	}
	devices, err := s.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, device := range devices {
		out = append(out, buildDeviceResponse(device))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetDevice(c *gin.Context) {
	if s.registry == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "device registry not configured")
		return
	}
	device, err := s.registry.Get(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildDeviceResponse(device))
}

func (s *Server) handleDeactivateDevice(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.registry == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "device registry not configured")
		return
	}
	if err := s.registry.Deactivate(c.Request.Context(), c.Param("device_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVerifyChain(c *gin.Context) {
	if s.verifier == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "chain verifier not configured")
		return
	}
	report, err := s.verifier.Verify(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	if s.engine == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "chain engine not configured")
		return
	}
	if s.cfg.MaxDataBytes > 0 {
		// base64 or escaped payloads can be larger than the raw data limit
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.cfg.MaxDataBytes)*6+4096)
	}
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.DeviceID == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "device_id is required")
		return
	}
	// only known devices are charged against the limiter
	if s.registry != nil {
		if _, err := s.registry.Get(c.Request.Context(), req.DeviceID); err != nil {
			writeError(c, err)
			return
		}
	}
	if !s.enforceRateLimit(c, domain.SigningRateLimitKey(req.DeviceID)) {
		return
	}
	tx, err := s.engine.CreateTransaction(c.Request.Context(), req.DeviceID, req.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildTransactionResponse(tx))
}

func (s *Server) handleListTransactions(c *gin.Context) {
	if s.query == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "transaction query not configured")
		return
	}
	txs, err := s.query.List(c.Request.Context(), c.Query("device_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, buildTransactionResponse(tx))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	if s.query == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "transaction query not configured")
		return
	}
	tx, err := s.query.Get(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildTransactionResponse(tx))
}

// requireAdmin only guards when an admin key is configured.
func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return true
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func buildDeviceResponse(device domain.Device) deviceResponse {
	return deviceResponse{
		ID:               device.ID,
		Label:            device.Label,
		Algorithm:        string(device.Algorithm),
		PublicKey:        device.PublicKey,
		SignatureCounter: device.SignatureCounter,
		Status:           string(device.Status),
		CreatedAt:        device.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func buildTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                tx.ID,
		DeviceID:          tx.DeviceID,
		Counter:           tx.Counter,
		Timestamp:         tx.Timestamp.UTC().Format(time.RFC3339Nano),
		Data:              tx.Data,
		PreviousSignature: tx.PreviousSignature,
		SignedData:        tx.SignedData,
		Signature:         tx.Signature,
	}
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrDeviceInactive):
		status, code = http.StatusConflict, "DEVICE_INACTIVE"
	case errors.Is(err, domain.ErrConcurrency):
		status, code = http.StatusConflict, "CONCURRENCY_CONFLICT"
	case errors.Is(err, domain.ErrKeyGeneration), errors.Is(err, domain.ErrSigning):
		status, code = http.StatusInternalServerError, "CRYPTO_FAILURE"
	case errors.Is(err, domain.ErrPersistence):
		status, code = http.StatusServiceUnavailable, "PERSISTENCE_FAILURE"
	case errors.Is(err, domain.ErrChainBroken):
		status, code = http.StatusInternalServerError, "CHAIN_BROKEN"
	}
	writeErrorCode(c, status, code, err.Error())
	_ = c.Error(err)
	c.Set(errorCodeKey, usecase.ErrorCode(err))
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
