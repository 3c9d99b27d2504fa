package authaccount

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

// PostgresStore persists auth accounts. Writes join the caller's transaction
// when one is carried on the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	id, login, email, display_name, phone, mobile, country_id, is_company, vat, password_hash,
	role, active, primary_account_id, extra, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, account *models.AuthAccount) error {
	extra, err := json.Marshal(account.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra fields: %w", err)
	}
	query := `
		INSERT INTO auth_accounts (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(account.ID),
		account.Login,
		account.Email,
		account.DisplayName,
		account.Phone,
		account.Mobile,
		account.CountryID,
		account.IsCompany,
		account.VAT,
		account.PasswordHash,
		account.Role,
		account.Active,
		nullPrimaryID(account.PrimaryAccountID),
		string(extra),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert auth account: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, account *models.AuthAccount) error {
	extra, err := json.Marshal(account.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra fields: %w", err)
	}
	query := `
		UPDATE auth_accounts SET
			login = $2, email = $3, display_name = $4, phone = $5, mobile = $6, country_id = $7,
			is_company = $8, vat = $9, role = $10, active = $11, primary_account_id = $12,
			extra = $13, updated_at = $14
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(account.ID),
		account.Login,
		account.Email,
		account.DisplayName,
		account.Phone,
		account.Mobile,
		account.CountryID,
		account.IsCompany,
		account.VAT,
		account.Role,
		account.Active,
		nullPrimaryID(account.PrimaryAccountID),
		string(extra),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update auth account: %w", postgres.TranslateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auth account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("auth account %s: %w", account.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, authID id.AuthAccountID) (*models.AuthAccount, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT`+selectColumns+` FROM auth_accounts WHERE id = $1`, uuid.UUID(authID))
	return scan(row)
}

// FindByLogin locks the row when called inside a transaction.
func (s *PostgresStore) FindByLogin(ctx context.Context, login string) (*models.AuthAccount, error) {
	query := `SELECT` + selectColumns + ` FROM auth_accounts WHERE lower(login) = lower($1)`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	return scan(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, login))
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT count(*) FROM auth_accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count auth accounts: %w", err)
	}
	return n, nil
}

func scan(row *sql.Row) (*models.AuthAccount, error) {
	var (
		a         models.AuthAccount
		authID    uuid.UUID
		primaryID uuid.NullUUID
		extra     []byte
	)
	err := row.Scan(
		&authID, &a.Login, &a.Email, &a.DisplayName, &a.Phone, &a.Mobile, &a.CountryID, &a.IsCompany,
		&a.VAT, &a.PasswordHash, &a.Role, &a.Active, &primaryID, &extra, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auth account: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan auth account: %w", err)
	}
	a.ID = id.AuthAccountID(authID)
	a.Extra = map[string]any{}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &a.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra fields: %w", err)
		}
	}
	if primaryID.Valid {
		linked := id.PrimaryAccountID(primaryID.UUID)
		a.PrimaryAccountID = &linked
	}
	return &a, nil
}

func nullPrimaryID(primaryID *id.PrimaryAccountID) uuid.NullUUID {
	if primaryID == nil || primaryID.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*primaryID), Valid: true}
}
