package domain

type AdmissionAction string

const (
	AdmissionRegister AdmissionAction = "register"
	AdmissionSign     AdmissionAction = "sign"
)

type AdmissionInput struct {
	Action    AdmissionAction `json:"action"`
	DeviceID  string          `json:"device_id,omitempty"`
	Algorithm string          `json:"algorithm"`
	Label     string          `json:"label,omitempty"`
	DataSize  int             `json:"data_size"`
	Counter   int64           `json:"counter"`
	Limits    AdmissionLimits `json:"limits"`
}

type AdmissionLimits struct {
	MaxDataBytes int `json:"max_data_bytes"`
}

type AdmissionDecision struct {
	Allow bool     `json:"allow"`
	Deny  []string `json:"deny,omitempty"`
}
