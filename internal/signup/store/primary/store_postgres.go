package primary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"onboard/internal/platform/postgres"
	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
	txcontext "onboard/pkg/platform/tx"
)

// PostgresStore persists primary accounts. Writes join the caller's transaction
// when one is carried on the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	id, kind, first_name, last_name, company_name, email, phone, phone_country_id, phone_type,
	tax_id, password_hash, email_validated, phone_validated, password_score, registration_ip,
	user_agent, device_label, dynamic_fields, active, auth_account_id, registered_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, account *models.PrimaryAccount) error {
	dynamic, err := json.Marshal(account.DynamicFields)
	if err != nil {
		return fmt.Errorf("marshal dynamic fields: %w", err)
	}
	query := `
		INSERT INTO primary_accounts (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(account.ID),
		string(account.Kind),
		account.FirstName,
		account.LastName,
		account.CompanyName,
		account.Email,
		account.Phone,
		account.PhoneCountryID,
		string(account.PhoneType),
		account.TaxID,
		account.PasswordHash,
		account.EmailValidated,
		account.PhoneValidated,
		account.PasswordScore,
		account.RegistrationIP,
		account.UserAgent,
		account.DeviceLabel,
		string(dynamic),
		account.Active,
		nullAuthID(account.AuthAccountID),
		account.RegisteredAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert primary account: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, account *models.PrimaryAccount) error {
	dynamic, err := json.Marshal(account.DynamicFields)
	if err != nil {
		return fmt.Errorf("marshal dynamic fields: %w", err)
	}
	query := `
		UPDATE primary_accounts SET
			kind = $2, first_name = $3, last_name = $4, company_name = $5, email = $6, phone = $7,
			phone_country_id = $8, phone_type = $9, tax_id = $10, email_validated = $11,
			phone_validated = $12, dynamic_fields = $13, active = $14, auth_account_id = $15, updated_at = $16
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(account.ID),
		string(account.Kind),
		account.FirstName,
		account.LastName,
		account.CompanyName,
		account.Email,
		account.Phone,
		account.PhoneCountryID,
		string(account.PhoneType),
		account.TaxID,
		account.EmailValidated,
		account.PhoneValidated,
		string(dynamic),
		account.Active,
		nullAuthID(account.AuthAccountID),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update primary account: %w", postgres.TranslateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update primary account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("primary account %s: %w", account.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.PrimaryAccountID) (*models.PrimaryAccount, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT`+selectColumns+` FROM primary_accounts WHERE id = $1`, uuid.UUID(accountID))
	return scan(row)
}

// FindByEmail locks the row when called inside a transaction.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.PrimaryAccount, error) {
	query := `SELECT` + selectColumns + ` FROM primary_accounts WHERE lower(email) = lower($1)`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, email)
	return scan(row)
}

func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM primary_accounts WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check primary account email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT count(*) FROM primary_accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count primary accounts: %w", err)
	}
	return n, nil
}

func scan(row *sql.Row) (*models.PrimaryAccount, error) {
	var (
		a         models.PrimaryAccount
		accountID uuid.UUID
		kind      string
		phoneType string
		dynamic   []byte
		authID    uuid.NullUUID
	)
	err := row.Scan(
		&accountID, &kind, &a.FirstName, &a.LastName, &a.CompanyName, &a.Email, &a.Phone,
		&a.PhoneCountryID, &phoneType, &a.TaxID, &a.PasswordHash, &a.EmailValidated,
		&a.PhoneValidated, &a.PasswordScore, &a.RegistrationIP, &a.UserAgent, &a.DeviceLabel,
		&dynamic, &a.Active, &authID, &a.RegisteredAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("primary account: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan primary account: %w", err)
	}
	a.ID = id.PrimaryAccountID(accountID)
	a.Kind = models.AccountKind(kind)
	a.PhoneType = id.ParsePhoneType(phoneType)
	a.DynamicFields = map[string]any{}
	if len(dynamic) > 0 {
		if err := json.Unmarshal(dynamic, &a.DynamicFields); err != nil {
			return nil, fmt.Errorf("unmarshal dynamic fields: %w", err)
		}
	}
	if authID.Valid {
		linked := id.AuthAccountID(authID.UUID)
		a.AuthAccountID = &linked
	}
	return &a, nil
}

func nullAuthID(authID *id.AuthAccountID) uuid.NullUUID {
	if authID == nil || authID.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*authID), Valid: true}
}
