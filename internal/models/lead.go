package models

import (
	"crypto/rand"
	"fmt"
	"time"
)

// LeadStatus represents the current state of a lead in the routing pipeline
type LeadStatus string

const (
	// LeadStatusNew indicates the lead has been accepted at the ingest
	// endpoint and queued for routing
	LeadStatusNew LeadStatus = "new"

	// LeadStatusProcessed indicates at least one destination accepted the lead
	LeadStatusProcessed LeadStatus = "processed"

	// LeadStatusRejected indicates the lead was filtered, suppressed as a
	// duplicate, or all delivery attempts failed
	LeadStatusRejected LeadStatus = "rejected"

	// LeadStatusExported indicates the lead was extracted by an external
	// consumer after processing
	LeadStatusExported LeadStatus = "exported"
)

// IsValid checks if the status is a valid LeadStatus value
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusProcessed, LeadStatusRejected, LeadStatusExported:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusProcessed || s == LeadStatusRejected || s == LeadStatusExported
}

// Rejection reasons recorded on leads that never reach a destination
const (
	RejectionReasonDuplicate             = "duplicate"
	RejectionReasonSuppressed            = "suppressed"
	RejectionReasonSourceRules           = "source_rules_failed"
	RejectionReasonValidationFailed      = "validation_failed"
	RejectionReasonNoEligibleCampaign    = "no_eligible_campaign"
	RejectionReasonAllDeliveriesFailed   = "all_deliveries_failed"
	RejectionReasonDependencyUnavailable = "dependency_unavailable"
)

// RoutingResultStatus is the outcome of a single delivery attempt
type RoutingResultStatus string

const (
	// RoutingDelivered indicates the destination returned a 2xx response
	RoutingDelivered RoutingResultStatus = "delivered"

	// RoutingFailed indicates the destination was unreachable or returned
	// a non-2xx response
	RoutingFailed RoutingResultStatus = "failed"
)

// RoutingResult records one attempted delivery of a lead to a destination.
// Results are appended once per attempt and never mutated afterward.
type RoutingResult struct {
	ID              int64               `json:"id" db:"id"`
	LeadID          int64               `json:"lead_id" db:"lead_id"`
	CustomerID      string              `json:"customer_id" db:"customer_id"`
	CustomerName    string              `json:"customer_name,omitempty" db:"customer_name"`
	CampaignID      string              `json:"campaign_id" db:"campaign_id"`
	CampaignName    string              `json:"campaign_name,omitempty" db:"campaign_name"`
	DestinationID   string              `json:"destination_id" db:"destination_id"`
	DestinationName string              `json:"destination_name,omitempty" db:"destination_name"`
	Status          RoutingResultStatus `json:"status" db:"status"`
	ErrorMessage    *string             `json:"error_message,omitempty" db:"error_message"`
	DeliveredAt     time.Time           `json:"delivered_at" db:"delivered_at"`
}

// Succeeded returns true if the attempt was accepted by the destination
func (r *RoutingResult) Succeeded() bool {
	return r.Status == RoutingDelivered
}

// Lead represents one inbound record flowing through the routing engine.
// The ingestion snapshot (vendor, source, payloads, created_at) is immutable;
// status, rejection reason and routing results are updated as the lead
// progresses.
type Lead struct {
	ID              int64           `json:"id" db:"id"`
	LeadRef         string          `json:"lead_ref" db:"lead_ref"`
	VendorID        string          `json:"vendor_id" db:"vendor_id"`
	SourceID        string          `json:"source_id" db:"source_id"`
	RawPayload      JSONB           `json:"raw_payload" db:"raw_payload"`
	Data            JSONB           `json:"data" db:"data"`
	Status          LeadStatus      `json:"status" db:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	IsDuplicate     bool            `json:"is_duplicate" db:"is_duplicate"`
	Fingerprints    StringList      `json:"fingerprints,omitempty" db:"fingerprints"`
	RoutingResults  []RoutingResult `json:"routing_results"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

const leadRefCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewLeadRef generates a short public identifier of the form LD-XXXXXX.
// Ambiguous characters (0, O, 1, I) are excluded from the alphabet.
func NewLeadRef() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("lead ref generation: %v", err))
	}
	for i, b := range buf {
		buf[i] = leadRefCharset[int(b)%len(leadRefCharset)]
	}
	return "LD-" + string(buf)
}

// CanTransitionTo checks if the lead can transition from its current status
// to the target status
func (l *Lead) CanTransitionTo(target LeadStatus) bool {
	if l.Status == target {
		return false
	}

	switch l.Status {
	case LeadStatusNew:
		return target == LeadStatusProcessed || target == LeadStatusRejected

	case LeadStatusProcessed:
		// Processed leads can still be picked up by an export
		return target == LeadStatusExported

	default:
		return false
	}
}

// TransitionTo attempts to transition the lead to a new status
// Returns an error if the transition is not allowed
func (l *Lead) TransitionTo(target LeadStatus) error {
	if !l.CanTransitionTo(target) {
		return fmt.Errorf("invalid status transition from %s to %s", l.Status, target)
	}

	l.Status = target
	return nil
}

// MarkRejected marks the lead as rejected with the given reason
func (l *Lead) MarkRejected(reason string) error {
	if err := l.TransitionTo(LeadStatusRejected); err != nil {
		return err
	}

	l.RejectionReason = &reason
	return nil
}

// MarkProcessed marks the lead as successfully routed
func (l *Lead) MarkProcessed() error {
	return l.TransitionTo(LeadStatusProcessed)
}

// StringField returns the lead's canonical value for a field as a string.
// The second return is false when the field is absent or nil.
func (l *Lead) StringField(key string) (string, bool) {
	v, ok := l.Data[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}
