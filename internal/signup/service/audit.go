package service

import (
	"context"

	"onboard/pkg/attrs"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/audit"
	"onboard/pkg/requestcontext"
)

// logAudit writes an audit line and forwards the event to the publisher.
// Recognised attributes: account_id, subject, reason.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	var accountID id.PrimaryAccountID
	if raw := attrs.ExtractString(attributes, "account_id"); raw != "" {
		if parsed, err := id.ParsePrimaryAccountID(raw); err == nil {
			accountID = parsed
		}
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Category:  audit.AuditEvent(event).Category(),
		Timestamp: requestcontext.Now(ctx),
		AccountID: accountID,
		Subject:   attrs.ExtractString(attributes, "subject"),
		Action:    event,
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: requestID,
		ClientIP:  requestcontext.ClientIP(ctx),
		ActorID:   requestcontext.AdminActor(ctx),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", event,
			"error", err,
		)
	}
}
