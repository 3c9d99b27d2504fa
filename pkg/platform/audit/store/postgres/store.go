package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "onboard/pkg/domain"
	audit "onboard/pkg/platform/audit"
	txcontext "onboard/pkg/platform/tx"
)

// Store appends audit events to the audit_events table. Appends join the
// caller's transaction when one is carried on the context.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	var accountID any
	if !event.AccountID.IsNil() {
		accountID = uuid.UUID(event.AccountID)
	}
	query := `
		INSERT INTO audit_events (id, category, occurred_at, account_id, subject, action, reason, request_id, client_ip, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		accountID,
		event.Subject,
		event.Action,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID id.PrimaryAccountID) ([]audit.Event, error) {
	query := `
		SELECT category, occurred_at, subject, action, reason, request_id, client_ip, actor_id
		FROM audit_events
		WHERE account_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		e := audit.Event{AccountID: accountID}
		var category string
		if err := rows.Scan(&category, &e.Timestamp, &e.Subject, &e.Action, &e.Reason, &e.RequestID, &e.ClientIP, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
