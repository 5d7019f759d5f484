package domain

import (
	"time"
)

// AccessAction tags an audit row with the event that produced it.
type AccessAction string

const (
	AccessActionKeyValidation   AccessAction = "key_validation"
	AccessActionAccountCreation AccessAction = "account_creation"
	AccessActionLogin           AccessAction = "login"
	AccessActionFailedLogin     AccessAction = "failed_login"
)

// UnknownClientValue is recorded when the client address or agent is missing.
const UnknownClientValue = "unknown"

// ClientInfo describes the caller of a request for auditing.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Normalize fills missing fields with UnknownClientValue.
func (c ClientInfo) Normalize() ClientInfo {
	if c.IPAddress == "" {
		c.IPAddress = UnknownClientValue
	}
	if c.UserAgent == "" {
		c.UserAgent = UnknownClientValue
	}
	return c
}

// AccessLog is an append-only audit record. Rows are never updated or deleted.
type AccessLog struct {
	ID        int64        `json:"id"`
	Username  *string      `json:"username,omitempty"`
	HWID      string       `json:"hwid"`
	Action    AccessAction `json:"action"`
	IPAddress string       `json:"ip_address"`
	UserAgent string       `json:"user_agent"`
	CreatedAt time.Time    `json:"created_date"`
}

// NewAccessLog creates an audit record attributed to username.
func NewAccessLog(username, hwid string, action AccessAction, client ClientInfo) *AccessLog {
	entry := NewAnonymousAccessLog(hwid, action, client)
	entry.Username = &username
	return entry
}

// NewAnonymousAccessLog creates an audit record with a NULL username.
func NewAnonymousAccessLog(hwid string, action AccessAction, client ClientInfo) *AccessLog {
	client = client.Normalize()
	return &AccessLog{
		HWID:      hwid,
		Action:    action,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
}
