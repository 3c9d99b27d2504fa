// Package audit records account lifecycle events for later review.
package audit

import (
	"time"

	id "onboard/pkg/domain"
)

// EventCategory classifies audit events by purpose so sinks can apply different
// retention.
type EventCategory string

const (
	// CategoryCompliance covers account creation and changes to personal data.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers rejected or privileged operations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services to capture key actions.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	AccountID id.PrimaryAccountID
	Subject   string
	Action    string
	Reason    string
	RequestID string
	ClientIP  string
	// ActorID is set for admin operations performed on an account's behalf.
	ActorID string
}

type AuditEvent string

const (
	EventAccountProvisioned   AuditEvent = "account_provisioned"
	EventAccountUpdated       AuditEvent = "account_updated"
	EventAuthAccountLinked    AuditEvent = "auth_account_linked"
	EventAuthAccountEnsured   AuditEvent = "auth_account_ensured"
	EventSignupRejected       AuditEvent = "signup_rejected"
	EventDuplicateSignup      AuditEvent = "duplicate_signup"
	EventProvisioningFailed   AuditEvent = "provisioning_failed"
	EventAuthSyncFailed       AuditEvent = "auth_sync_failed"
	EventDisposableDomainSeen AuditEvent = "disposable_domain_seen"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountProvisioned: CategoryCompliance,
	EventAccountUpdated:     CategoryCompliance,
	EventAuthAccountLinked:  CategoryCompliance,
	EventAuthAccountEnsured: CategoryCompliance,

	EventDuplicateSignup:      CategorySecurity,
	EventDisposableDomainSeen: CategorySecurity,

	EventSignupRejected:     CategoryOperations,
	EventProvisioningFailed: CategoryOperations,
	EventAuthSyncFailed:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
