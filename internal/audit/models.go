package audit

import (
	"context"
	"time"

	id "vouch/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers durable trust decisions. These back up the
	// tier a user holds and require long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected callbacks and replay attempts.
	// These feed monitoring and alerting.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine handshake activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from verification and gating logic to capture key
// actions. Keep it transport-agnostic so stores can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Provider  string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	IP        string
	// Device is the human-readable rendering of the client's user agent,
	// kept instead of the raw string to avoid storing fingerprintable PII.
	Device string
}

type AuditEvent string

const (
	// Handshake events
	EventVerificationStarted    AuditEvent = "verification_started"
	EventVerificationSuperseded AuditEvent = "verification_superseded"
	EventVerificationCompleted  AuditEvent = "verification_completed"
	EventVerificationFailed     AuditEvent = "verification_failed"
	EventCallbackRejected       AuditEvent = "callback_rejected"

	// Submission gate events
	EventSubmissionAccepted AuditEvent = "submission_accepted"
	EventSubmissionDenied   AuditEvent = "submission_denied"
	EventQuotaConsumed      AuditEvent = "quota_consumed"
)

var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - tier changes must be reconstructable
	EventVerificationCompleted: CategoryCompliance,
	EventVerificationFailed:    CategoryCompliance,
	EventQuotaConsumed:         CategoryCompliance,

	// Security events - rejected or replayed callbacks
	EventCallbackRejected: CategorySecurity,
	EventSubmissionDenied: CategorySecurity,

	// Operations events - routine activity
	EventVerificationStarted:    CategoryOperations,
	EventVerificationSuperseded: CategoryOperations,
	EventSubmissionAccepted:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
