package request

type ActivateVoucherRequest struct {
	MacAddress        string `json:"mac_address" validate:"required,macaddr"`
	IPAddress         string `json:"ip_address" validate:"required,ip"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty" validate:"omitempty,max=2048"`
}
