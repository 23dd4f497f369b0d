package entity

import "time"

// RadiusUser describes a FreeRADIUS credential with its reply attributes.
type RadiusUser struct {
	Username       string
	Password       string
	ExpiresAt      time.Time
	SessionTimeout int64 // seconds
	DownloadBps    int64
	UploadBps      int64
}

type RadiusAttribute struct {
	Attribute string
	Op        string
	Value     string
}
