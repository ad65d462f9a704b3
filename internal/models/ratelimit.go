package models

// RateLimitResult is the outcome of one sliding-window check. ResetTime is unix seconds.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime int64
}

// ViolationStatus is the outcome of tracking one violation. BlockExpiry is unix seconds
// and is zero unless IsBlocked.
type ViolationStatus struct {
	Violations  int64
	IsBlocked   bool
	BlockExpiry int64
}

// SecurityEvent is published when the session protocol detects something worth alerting on.
type SecurityEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	Family     string `json:"family,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
}
