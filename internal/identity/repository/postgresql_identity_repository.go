// Package repository provides data persistence implementations for identity records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/fieldvault/internal/database"
	"github.com/allisson/fieldvault/internal/identity/domain"

	apperrors "github.com/allisson/fieldvault/internal/errors"
)

const identityColumns = `id, email, password_hash, salt, user_wrapped_dek, admin_wrapped_dek,
	encrypted_fields, tier, role, tenant_id, created_at, updated_at`

// PostgreSQLIdentityRepository handles identity persistence for PostgreSQL.
type PostgreSQLIdentityRepository struct {
	db *sql.DB
}

// NewPostgreSQLIdentityRepository creates a new PostgreSQLIdentityRepository.
func NewPostgreSQLIdentityRepository(db *sql.DB) *PostgreSQLIdentityRepository {
	return &PostgreSQLIdentityRepository{
		db: db,
	}
}

// Create inserts a new identity. All key artifacts land in one INSERT so a
// partial record can never exist.
func (r *PostgreSQLIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO identities (id, email, password_hash, salt, user_wrapped_dek,
			  admin_wrapped_dek, encrypted_fields, tier, role, tenant_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query,
		identity.ID, identity.Email, identity.PasswordHash, identity.Salt,
		identity.UserWrappedDek, identity.AdminWrappedDek, identity.EncryptedFields,
		identity.Tier, identity.Role, identity.TenantID,
	)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return domain.ErrIdentityAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create identity")
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (r *PostgreSQLIdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity, err := scanIdentity(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get identity by id")
	}

	return identity, nil
}

// GetByEmail retrieves an identity by email.
func (r *PostgreSQLIdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`

	identity, err := scanIdentity(querier.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get identity by email")
	}

	return identity, nil
}

// UpdateKeyWrap replaces the salt, user-wrapped DEK, and password hash in a
// single UPDATE. The admin-wrapped DEK and encrypted fields are deliberately
// untouched.
func (r *PostgreSQLIdentityRepository) UpdateKeyWrap(
	ctx context.Context,
	id uuid.UUID,
	salt, userWrappedDek, passwordHash string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE identities SET salt = $1, user_wrapped_dek = $2, password_hash = $3,
			  updated_at = NOW() WHERE id = $4`

	result, err := querier.ExecContext(ctx, query, salt, userWrappedDek, passwordHash, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update identity key wrap")
	}
	return requireOneRow(result)
}

// UpdateEncryptedFields replaces the sealed profile blob in a single UPDATE.
func (r *PostgreSQLIdentityRepository) UpdateEncryptedFields(
	ctx context.Context,
	id uuid.UUID,
	encryptedFields string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE identities SET encrypted_fields = $1, updated_at = NOW() WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, encryptedFields, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update identity encrypted fields")
	}
	return requireOneRow(result)
}

// rowScanner abstracts *sql.Row for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.Salt,
		&identity.UserWrappedDek, &identity.AdminWrappedDek, &identity.EncryptedFields,
		&identity.Tier, &identity.Role, &identity.TenantID,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPostgreSQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// PostgreSQL: "duplicate key value violates unique constraint" or "pq: duplicate key"
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
