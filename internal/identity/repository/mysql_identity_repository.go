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

// MySQLIdentityRepository handles identity persistence for MySQL.
type MySQLIdentityRepository struct {
	db *sql.DB
}

// NewMySQLIdentityRepository creates a new MySQLIdentityRepository.
func NewMySQLIdentityRepository(db *sql.DB) *MySQLIdentityRepository {
	return &MySQLIdentityRepository{
		db: db,
	}
}

// Create inserts a new identity. All key artifacts land in one INSERT so a
// partial record can never exist.
func (r *MySQLIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO identities (id, email, password_hash, salt, user_wrapped_dek,
			  admin_wrapped_dek, encrypted_fields, tier, role, tenant_id, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUIDs to bytes for MySQL BINARY(16)
	idBytes, err := identity.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}
	tenantBytes, err := identity.TenantID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tenant UUID")
	}

	_, err = querier.ExecContext(ctx, query,
		idBytes, identity.Email, identity.PasswordHash, identity.Salt,
		identity.UserWrappedDek, identity.AdminWrappedDek, identity.EncryptedFields,
		identity.Tier, identity.Role, tenantBytes,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return domain.ErrIdentityAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create identity")
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (r *MySQLIdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = ?`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	identity, err := scanMySQLIdentity(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get identity by id")
	}

	return identity, nil
}

// GetByEmail retrieves an identity by email.
func (r *MySQLIdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = ?`

	identity, err := scanMySQLIdentity(querier.QueryRowContext(ctx, query, email))
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
func (r *MySQLIdentityRepository) UpdateKeyWrap(
	ctx context.Context,
	id uuid.UUID,
	salt, userWrappedDek, passwordHash string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE identities SET salt = ?, user_wrapped_dek = ?, password_hash = ?,
			  updated_at = NOW() WHERE id = ?`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, salt, userWrappedDek, passwordHash, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update identity key wrap")
	}
	return requireOneRow(result)
}

// UpdateEncryptedFields replaces the sealed profile blob in a single UPDATE.
func (r *MySQLIdentityRepository) UpdateEncryptedFields(
	ctx context.Context,
	id uuid.UUID,
	encryptedFields string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE identities SET encrypted_fields = ?, updated_at = NOW() WHERE id = ?`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, encryptedFields, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update identity encrypted fields")
	}
	return requireOneRow(result)
}

func scanMySQLIdentity(row rowScanner) (*domain.Identity, error) {
	var identity domain.Identity
	var idBytes, tenantBytes []byte

	err := row.Scan(
		&idBytes, &identity.Email, &identity.PasswordHash, &identity.Salt,
		&identity.UserWrappedDek, &identity.AdminWrappedDek, &identity.EncryptedFields,
		&identity.Tier, &identity.Role, &tenantBytes,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Convert bytes back to UUIDs
	if err := identity.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	if err := identity.TenantID.UnmarshalBinary(tenantBytes); err != nil {
		return nil, err
	}

	return &identity, nil
}

// isMySQLUniqueViolation checks if the error is a MySQL unique constraint violation.
func isMySQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// MySQL: "Error 1062: Duplicate entry"
	return strings.Contains(errMsg, "duplicate entry") || strings.Contains(errMsg, "1062")
}
