package domain

import "time"

// Case statuses. The lifecycle is a bounded graph: created → submitted →
// {approved | rejected | auto_rejected | resubmission_required}, where
// resubmission_required may return to submitted, and any non-terminal status
// may move to expired via the TTL sweep.
const (
	StatusCreated              = "created"
	StatusSubmitted            = "submitted"
	StatusApproved             = "approved"
	StatusRejected             = "rejected"
	StatusAutoRejected         = "auto_rejected"
	StatusResubmissionRequired = "resubmission_required"
	StatusExpired              = "expired"
)

// Webhook event types emitted on status transitions.
const (
	EventCreated              = "verification.created"
	EventSubmitted            = "verification.submitted"
	EventApproved             = "verification.approved"
	EventRejected             = "verification.rejected"
	EventResubmissionRequired = "verification.resubmission_required"
	EventExpired              = "verification.expired"
)

// VerificationCase is the authoritative record of a single identity
// verification attempt. Mutated only through lifecycle transitions, never
// deleted explicitly — it expires via the table TTL on expires_at.
type VerificationCase struct {
	CaseID           string                 `json:"id" dynamodbav:"case_id"`
	ClientID         string                 `json:"client_id" dynamodbav:"client_id"`
	Status           string                 `json:"status" dynamodbav:"status"`
	DocumentType     string                 `json:"document_type,omitempty" dynamodbav:"document_type"`
	CustomerRef      string                 `json:"customer_ref,omitempty" dynamodbav:"customer_ref"` // redacted reference, never raw PII
	ExtractedData    map[string]interface{} `json:"extracted_data,omitempty" dynamodbav:"extracted_data"`
	BiometricSummary map[string]interface{} `json:"biometric_summary,omitempty" dynamodbav:"biometric_summary"`
	DecidedBy        string                 `json:"decided_by,omitempty" dynamodbav:"decided_by"`
	Reason           string                 `json:"reason,omitempty" dynamodbav:"reason"`
	Notes            string                 `json:"notes,omitempty" dynamodbav:"notes"`
	Version          int64                  `json:"-" dynamodbav:"version"`
	CreatedAt        time.Time              `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time              `json:"updated" dynamodbav:"updated_at"`
	CompletedAt      *time.Time             `json:"completed,omitempty" dynamodbav:"completed_at,omitempty"`
	ExpiresAt        int64                  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusAutoRejected, StatusExpired:
		return true
	}
	return false
}

// transitions holds the allowed lifecycle edges, keyed by current status.
var transitions = map[string][]string{
	StatusCreated:              {StatusSubmitted},
	StatusSubmitted:            {StatusApproved, StatusRejected, StatusAutoRejected, StatusResubmissionRequired},
	StatusResubmissionRequired: {StatusSubmitted},
}

// CanTransition reports whether the edge from → to is part of the lifecycle
// graph. Every non-terminal status may additionally move to expired.
func CanTransition(from, to string) bool {
	if to == StatusExpired {
		return !IsTerminal(from)
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// statusEvents maps a new status to the webhook event it emits.
// Statuses outside the map emit nothing.
var statusEvents = map[string]string{
	StatusCreated:              EventCreated,
	StatusSubmitted:            EventSubmitted,
	StatusApproved:             EventApproved,
	StatusRejected:             EventRejected,
	StatusAutoRejected:         EventRejected,
	StatusResubmissionRequired: EventResubmissionRequired,
	StatusExpired:              EventExpired,
}

// EventForStatus returns the webhook event emitted when a case enters status,
// or "" when the status emits no event.
func EventForStatus(status string) string {
	return statusEvents[status]
}

// KnownEvent reports whether s is a subscribable webhook event type.
func KnownEvent(s string) bool {
	for _, e := range statusEvents {
		if e == s {
			return true
		}
	}
	return false
}
