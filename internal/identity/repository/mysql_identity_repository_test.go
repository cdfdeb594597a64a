package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/fieldvault/internal/errors"
	"github.com/allisson/fieldvault/internal/identity/domain"
)

func mustBinary(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	b, err := id.MarshalBinary()
	require.NoError(t, err)
	return b
}

func mysqlIdentityRows(t *testing.T, identity *domain.Identity) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows(identityColumnNames).AddRow(
		mustBinary(t, identity.ID), identity.Email, identity.PasswordHash, identity.Salt,
		identity.UserWrappedDek, identity.AdminWrappedDek, identity.EncryptedFields,
		string(identity.Tier), string(identity.Role), mustBinary(t, identity.TenantID),
		identity.CreatedAt, identity.UpdatedAt,
	)
}

func TestMySQLIdentityRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts with binary uuids", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		identity := testIdentity()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identities")).
			WithArgs(
				mustBinary(t, identity.ID), identity.Email, identity.PasswordHash, identity.Salt,
				identity.UserWrappedDek, identity.AdminWrappedDek, identity.EncryptedFields,
				identity.Tier, identity.Role, mustBinary(t, identity.TenantID),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewMySQLIdentityRepository(db)
		err = repo.Create(ctx, identity)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identities")).
			WillReturnError(errors.New("Error 1062: Duplicate entry 'alice@example.com' for key 'identities.email'"))

		repo := NewMySQLIdentityRepository(db)
		err = repo.Create(ctx, testIdentity())
		assert.True(t, apperrors.Is(err, domain.ErrIdentityAlreadyExists))
	})
}

func TestMySQLIdentityRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the full record", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		identity := testIdentity()

		mock.ExpectQuery("SELECT (.+) FROM identities WHERE id").
			WithArgs(mustBinary(t, identity.ID)).
			WillReturnRows(mysqlIdentityRows(t, identity))

		repo := NewMySQLIdentityRepository(db)
		got, err := repo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, got.ID)
		assert.Equal(t, identity.TenantID, got.TenantID)
		assert.Equal(t, identity.UserWrappedDek, got.UserWrappedDek)
	})

	t.Run("missing record is not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())

		mock.ExpectQuery("SELECT (.+) FROM identities WHERE id").
			WithArgs(mustBinary(t, id)).
			WillReturnRows(sqlmock.NewRows(identityColumnNames))

		repo := NewMySQLIdentityRepository(db)
		got, err := repo.GetByID(ctx, id)
		assert.Nil(t, got)
		assert.True(t, apperrors.Is(err, domain.ErrIdentityNotFound))
	})
}

func TestMySQLIdentityRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	identity := testIdentity()

	mock.ExpectQuery("SELECT (.+) FROM identities WHERE email").
		WithArgs(identity.Email).
		WillReturnRows(mysqlIdentityRows(t, identity))

	repo := NewMySQLIdentityRepository(db)
	got, err := repo.GetByEmail(ctx, identity.Email)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)
	assert.Equal(t, identity.Email, got.Email)
}

func TestMySQLIdentityRepository_UpdateKeyWrap(t *testing.T) {
	ctx := context.Background()

	t.Run("updates salt, wrap and hash together", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET salt")).
			WithArgs("new-salt", "new-wrap", "new-hash", mustBinary(t, id)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewMySQLIdentityRepository(db)
		err = repo.UpdateKeyWrap(ctx, id, "new-salt", "new-wrap", "new-hash")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record is not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET salt")).
			WithArgs("new-salt", "new-wrap", "new-hash", mustBinary(t, id)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewMySQLIdentityRepository(db)
		err = repo.UpdateKeyWrap(ctx, id, "new-salt", "new-wrap", "new-hash")
		assert.True(t, apperrors.Is(err, domain.ErrIdentityNotFound))
	})
}

func TestMySQLIdentityRepository_UpdateEncryptedFields(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.Must(uuid.NewV7())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET encrypted_fields")).
		WithArgs("new-sealed-profile", mustBinary(t, id)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewMySQLIdentityRepository(db)
	err = repo.UpdateEncryptedFields(ctx, id, "new-sealed-profile")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
