package request

// HeartbeatRequest may carry the device's current addresses; empty fields
// leave the recorded ones unchanged.
type HeartbeatRequest struct {
	MacAddress        string `json:"mac_address,omitempty" validate:"omitempty,macaddr"`
	IPAddress         string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty" validate:"omitempty,max=2048"`
}

type DeviceUpdateRequest struct {
	MacAddress string `json:"mac_address,omitempty" validate:"omitempty,macaddr"`
	IPAddress  string `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

type ReconnectRequest struct {
	MacAddress string `json:"mac_address" validate:"required,macaddr"`
	IPAddress  string `json:"ip_address" validate:"required,ip"`
}

type ReconnectByTokenRequest struct {
	SessionToken string `json:"session_token" validate:"required,min=10"`
	MacAddress   string `json:"mac_address" validate:"required,macaddr"`
	IPAddress    string `json:"ip_address" validate:"required,ip"`
}
