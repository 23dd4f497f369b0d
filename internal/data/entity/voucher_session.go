package entity

import (
	"time"
)

type SessionStatus string

const (
	SessionActive       SessionStatus = "ACTIVE"
	SessionPaused       SessionStatus = "PAUSED"
	SessionExpired      SessionStatus = "EXPIRED"
	SessionTerminated   SessionStatus = "TERMINATED"
	SessionReconnecting SessionStatus = "RECONNECTING"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionExpired || s == SessionTerminated
}

const DefaultMaxMissedHeartbeats = 3

type VoucherSession struct {
	BaseNoDelete
	SessionToken        string        `db:"session_token"`
	VoucherCode         string        `db:"voucher_code"`
	PhoneNumber         string        `db:"phone_number"`
	PackageID           int64         `db:"package_id"`
	PackageDurationDays int           `db:"package_duration_days"`
	MacAddress          string        `db:"mac_address"`
	IPAddress           string        `db:"ip_address"`
	LastMacAddress      *string       `db:"last_mac_address"`
	LastIPAddress       *string       `db:"last_ip_address"`
	AllowedMacAddresses []string      `db:"allowed_mac_addresses"`
	AllowedIPAddresses  []string      `db:"allowed_ip_addresses"`
	MacChangesCount     int           `db:"mac_changes_count"`
	IPChangesCount      int           `db:"ip_changes_count"`
	FingerprintHash     *string       `db:"device_fingerprint_hash"`
	FingerprintLastSeen *time.Time    `db:"fingerprint_last_seen"`
	RadiusUsername      string        `db:"radius_username"`
	SessionStart        time.Time     `db:"session_start"`
	SessionEnd          *time.Time    `db:"session_end"`
	ExpiresAt           time.Time     `db:"expires_at"`
	LastActivityTime    *time.Time    `db:"last_activity_time"`
	Status              SessionStatus `db:"session_status"`
	IsConnected         bool          `db:"is_connected"`
	DisconnectionCount  int           `db:"disconnection_count"`
	TerminatedBy        *string       `db:"terminated_by"`
	HeartbeatInterval   int           `db:"heartbeat_interval_seconds"`
	LastHeartbeatTime   *time.Time    `db:"last_heartbeat_time"`
	MissedHeartbeats    int           `db:"missed_heartbeats"`
	MaxMissedHeartbeats int           `db:"max_missed_heartbeats"`
	PersistentSession   bool          `db:"persistent_session"`
	NoReauthRequired    bool          `db:"no_reauthentication_required"`
	AutoReconnect       bool          `db:"auto_reconnect_enabled"`
}

// HeartbeatIntervalFor picks how often a device must check in, longer
// packages tolerate sparser heartbeats.
func HeartbeatIntervalFor(durationDays int) int {
	switch {
	case durationDays >= 30:
		return 1800
	case durationDays >= 7:
		return 900
	default:
		return 300
	}
}

func (s *VoucherSession) IsExpired(now time.Time) bool {
	return s.Status == SessionExpired || !now.Before(s.ExpiresAt)
}

func (s *VoucherSession) RemainingSeconds(now time.Time) int64 {
	if rem := int64(s.ExpiresAt.Sub(now).Seconds()); rem > 0 {
		return rem
	}
	return 0
}

func (s *VoucherSession) ElapsedSeconds(now time.Time) int64 {
	end := now
	if s.SessionEnd != nil {
		end = *s.SessionEnd
	}
	if el := int64(end.Sub(s.SessionStart).Seconds()); el > 0 {
		return el
	}
	return 0
}

// HeartbeatOverdue reports whether the device has missed its check-in window.
func (s *VoucherSession) HeartbeatOverdue(now time.Time) bool {
	last := s.SessionStart
	if s.LastHeartbeatTime != nil {
		last = *s.LastHeartbeatTime
	}
	return now.Sub(last) > time.Duration(s.HeartbeatInterval)*time.Second
}

// ApplyDevice records a MAC/IP change. Every new address joins the allowed
// list and bumps its churn counter. Returns true when anything changed.
func (s *VoucherSession) ApplyDevice(mac, ip string) bool {
	changed := false
	if mac != "" && mac != s.MacAddress {
		prev := s.MacAddress
		s.LastMacAddress = &prev
		s.MacAddress = mac
		s.MacChangesCount++
		s.AllowedMacAddresses = appendUnique(s.AllowedMacAddresses, mac)
		changed = true
	}
	if ip != "" && ip != s.IPAddress {
		prev := s.IPAddress
		s.LastIPAddress = &prev
		s.IPAddress = ip
		s.IPChangesCount++
		s.AllowedIPAddresses = appendUnique(s.AllowedIPAddresses, ip)
		changed = true
	}
	return changed
}

// IsKnownDevice reports whether mac was ever bound to this session.
func (s *VoucherSession) IsKnownDevice(mac string) bool {
	if mac == s.MacAddress {
		return true
	}
	for _, m := range s.AllowedMacAddresses {
		if m == mac {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
