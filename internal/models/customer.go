package models

import "time"

// ApprovalStatus gates whether a destination may receive traffic
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// DestinationConfig describes how to reach an outbound delivery target
type DestinationConfig struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`       // GET, POST, PUT
	ContentType     string            `json:"content_type"` // json, form
	Headers         map[string]string `json:"headers,omitempty"`
	AuthType        string            `json:"auth_type"` // none, bearer, basic
	AuthCredentials map[string]string `json:"auth_credentials,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
}

// Timeout returns the per-request timeout with a default of 5 seconds
func (c DestinationConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Destination is an outbound delivery target belonging to a customer.
// Only approved destinations may receive traffic.
type Destination struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id"`
	Name           string            `json:"name"`
	Config         DestinationConfig `json:"config"`
	Enabled        bool              `json:"enabled"`
	ApprovalStatus ApprovalStatus    `json:"approval_status"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Deliverable reports whether the destination may receive traffic
func (d *Destination) Deliverable() bool {
	return d.Enabled && d.ApprovalStatus == ApprovalApproved
}

// Customer owns destinations and campaigns
type Customer struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
