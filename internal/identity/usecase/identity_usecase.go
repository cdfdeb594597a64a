// Package usecase implements the identity business logic: registration,
// login, password change, and profile updates, orchestrating the crypto
// engine, the SQL identity store, and the session cache.
package usecase

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/go-pwdhash"
	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
	"github.com/allisson/fieldvault/internal/database"
	apperrors "github.com/allisson/fieldvault/internal/errors"
	"github.com/allisson/fieldvault/internal/identity/domain"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
	sessionUsecase "github.com/allisson/fieldvault/internal/session/usecase"
	appValidation "github.com/allisson/fieldvault/internal/validation"
)

// passwordChangeLockPrefix keys the per-subject lock that serializes the
// unwrap, re-seal, and broadcast-invalidate sequence.
const passwordChangeLockPrefix = "pwchange:"

// lockoutCounterPrefix keys the failed-login counter per subject.
const lockoutCounterPrefix = "lockout:"

// LockoutPolicy caps failed login attempts per subject.
type LockoutPolicy struct {
	MaxAttempts int64
	Duration    time.Duration
}

// RegisterInput contains the input data for identity registration.
type RegisterInput struct {
	RegistrationToken string             `json:"registration_token"`
	Email             string             `json:"email"`
	Password          string             `json:"password"`
	Name              string             `json:"name"`
	Tier              sessionDomain.Tier `json:"tier"`
	TenantID          uuid.UUID          `json:"tenant_id"`
}

// LoginInput contains the input data for login.
type LoginInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Persistent bool   `json:"persistent"`
}

// LoginOutput carries the bearer token and the tier-dependent key release.
// Dek is set for the high and convenience tiers (the caller holds the full
// key); ClientKeyPart is set for the balanced tier (the server caches the
// other half). The token always travels separately from key material.
type LoginOutput struct {
	Token         string
	SubjectID     uuid.UUID
	Tier          sessionDomain.Tier
	Dek           string
	ClientKeyPart string
}

// UseCase defines the interface for identity business logic operations.
type UseCase interface {
	Register(ctx context.Context, input RegisterInput) (*domain.Identity, error)
	Login(ctx context.Context, input LoginInput) (*LoginOutput, error)
	ChangePassword(ctx context.Context, subjectID uuid.UUID, oldPassword, newPassword string) (*LoginOutput, error)
	UpdateProfile(ctx context.Context, subjectID uuid.UUID, dek []byte, fields domain.ProfileFields) error
	Profile(ctx context.Context, subjectID uuid.UUID, dek []byte) (*domain.ProfileFields, error)
	Authenticate(ctx context.Context, token string) (*sessionUsecase.VerifyResult, error)
}

// IdentityRepository interface defines identity repository operations.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateKeyWrap(ctx context.Context, id uuid.UUID, salt, userWrappedDek, passwordHash string) error
	UpdateEncryptedFields(ctx context.Context, id uuid.UUID, encryptedFields string) error
}

// IdentityUseCase handles identity-related business logic.
type IdentityUseCase struct {
	txManager       database.TxManager
	identityRepo    IdentityRepository
	keyManager      cryptoService.KeyManager
	splitCustody    cryptoService.SplitCustody
	fieldCodec      cryptoService.FieldCodec
	sessionUseCase  sessionUsecase.SessionUseCase
	dekCacheUseCase sessionUsecase.DekCacheUseCase
	lockRepo        sessionUsecase.LockRepository
	counterRepo     sessionUsecase.CounterRepository
	passwordHasher  *pwdhash.PasswordHasher
	lockout         LockoutPolicy
}

// NewIdentityUseCase creates a new IdentityUseCase.
func NewIdentityUseCase(
	txManager database.TxManager,
	identityRepo IdentityRepository,
	keyManager cryptoService.KeyManager,
	splitCustody cryptoService.SplitCustody,
	fieldCodec cryptoService.FieldCodec,
	sessionUseCase sessionUsecase.SessionUseCase,
	dekCacheUseCase sessionUsecase.DekCacheUseCase,
	lockRepo sessionUsecase.LockRepository,
	counterRepo sessionUsecase.CounterRepository,
	lockout LockoutPolicy,
) (*IdentityUseCase, error) {
	// Interactive policy keeps login latency acceptable; the password is also
	// stretched separately by the key derivation in the crypto engine.
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}

	return &IdentityUseCase{
		txManager:       txManager,
		identityRepo:    identityRepo,
		keyManager:      keyManager,
		splitCustody:    splitCustody,
		fieldCodec:      fieldCodec,
		sessionUseCase:  sessionUseCase,
		dekCacheUseCase: dekCacheUseCase,
		lockRepo:        lockRepo,
		counterRepo:     counterRepo,
		passwordHasher:  hasher,
		lockout:         lockout,
	}, nil
}

// validateRegisterInput validates the registration input.
func (uc *IdentityUseCase) validateRegisterInput(input RegisterInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.RegistrationToken,
			validation.Required.Error("registration token is required"),
		),
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.NotBlank,
			validation.Length(1, 255).Error("name must be between 1 and 255 characters"),
		),
		validation.Field(&input.Email,
			validation.Required.Error("email is required"),
			appValidation.NotBlank,
			appValidation.Email,
			validation.Length(5, 255).Error("email must be between 5 and 255 characters"),
		),
		validation.Field(&input.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 128).Error("password must be between 8 and 128 characters"),
			appValidation.PasswordStrength{
				MinLength:      8,
				RequireUpper:   true,
				RequireLower:   true,
				RequireNumber:  true,
				RequireSpecial: true,
			},
		),
		validation.Field(&input.Tier,
			validation.Required.Error("tier is required"),
			validation.In(
				sessionDomain.TierHigh,
				sessionDomain.TierBalanced,
				sessionDomain.TierConvenience,
			).Error("tier must be high, balanced or convenience"),
		),
	)
	return appValidation.WrapValidationError(err)
}

// Register creates a new identity.
//
// The registration grant is consumed first and atomically; a store failure
// there fails the request. All four key artifacts (salt, both wrapped DEKs,
// encrypted fields) are persisted in a single INSERT so a partial record can
// never exist.
func (uc *IdentityUseCase) Register(ctx context.Context, input RegisterInput) (*domain.Identity, error) {
	if err := uc.validateRegisterInput(input); err != nil {
		return nil, err
	}

	if _, err := uc.sessionUseCase.ConsumeRegistrationToken(ctx, input.RegistrationToken); err != nil {
		return nil, err
	}

	hashedPassword, err := uc.passwordHasher.Hash([]byte(input.Password))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash password")
	}

	envelope, err := uc.keyManager.CreateIdentityKeys(input.Password)
	if err != nil {
		return nil, err
	}

	dek, err := uc.keyManager.UnwrapUserDek(input.Password, envelope.Salt, envelope.UserWrappedDek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dek)

	encryptedFields, err := uc.fieldCodec.EncryptFields(domain.ProfileFields{
		Name: strings.TrimSpace(input.Name),
	}, dek)
	if err != nil {
		return nil, err
	}

	tenantID := input.TenantID
	if tenantID == uuid.Nil {
		tenantID = uuid.Must(uuid.NewV7())
	}

	identity := &domain.Identity{
		ID:              uuid.Must(uuid.NewV7()),
		Email:           strings.TrimSpace(strings.ToLower(input.Email)),
		PasswordHash:    hashedPassword,
		Salt:            envelope.Salt,
		UserWrappedDek:  envelope.UserWrappedDek,
		AdminWrappedDek: envelope.AdminWrappedDek,
		EncryptedFields: encryptedFields,
		Tier:            input.Tier,
		Role:            sessionDomain.RoleUser,
		TenantID:        tenantID,
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.identityRepo.Create(ctx, identity)
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// Login authenticates an identity and releases key material per tier.
//
// The Argon2id verify runs before the PBKDF2 unwrap so a wrong password costs
// one cheap hash, not a 600k-iteration derivation, and so failed attempts can
// be counted toward lockout. A wrong password and a missing identity are
// externally indistinguishable.
func (uc *IdentityUseCase) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	identity, err := uc.identityRepo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(input.Email)))
	if err != nil {
		if apperrors.Is(err, domain.ErrIdentityNotFound) {
			return nil, cryptoDomain.ErrInvalidCredentials
		}
		return nil, err
	}

	lockoutKey := lockoutCounterPrefix + identity.ID.String()
	failures, err := uc.counterRepo.Get(ctx, lockoutKey)
	if err != nil {
		return nil, err
	}
	if failures >= uc.lockout.MaxAttempts {
		return nil, sessionDomain.ErrAccountLocked
	}

	ok, err := uc.passwordHasher.Verify([]byte(input.Password), identity.PasswordHash)
	if err != nil || !ok {
		if _, incErr := uc.counterRepo.Increment(ctx, lockoutKey, uc.lockout.Duration); incErr != nil {
			return nil, incErr
		}
		return nil, cryptoDomain.ErrInvalidCredentials
	}
	if err := uc.counterRepo.Reset(ctx, lockoutKey); err != nil {
		return nil, err
	}

	dek, err := uc.keyManager.UnwrapUserDek(input.Password, identity.Salt, identity.UserWrappedDek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dek)

	return uc.openSession(ctx, identity, dek, input.Persistent)
}

// openSession creates a session entry for the identity and performs the
// tier-dependent key release with the already-unwrapped DEK.
func (uc *IdentityUseCase) openSession(
	ctx context.Context,
	identity *domain.Identity,
	dek []byte,
	persistent bool,
) (*LoginOutput, error) {
	// The display name lives inside the encrypted fields; the DEK is in hand
	// here, so it is decrypted once and cached in the session entry.
	var fields domain.ProfileFields
	if err := uc.fieldCodec.DecryptFields(identity.EncryptedFields, dek, &fields); err != nil {
		return nil, err
	}

	entry := &sessionDomain.SessionEntry{
		SubjectID:   identity.ID,
		DisplayName: fields.Name,
		Role:        identity.Role,
		TenantID:    identity.TenantID,
		Tier:        identity.Tier,
		Persistent:  persistent,
	}

	token, err := uc.sessionUseCase.Create(ctx, entry)
	if err != nil {
		return nil, err
	}

	output := &LoginOutput{
		Token:     token,
		SubjectID: identity.ID,
		Tier:      identity.Tier,
	}

	if identity.Tier == sessionDomain.TierBalanced {
		splitDek, err := uc.splitCustody.Split(dek)
		if err != nil {
			return nil, err
		}
		if err := uc.dekCacheUseCase.CacheServerPart(ctx, identity.ID, token, splitDek.ServerPart); err != nil {
			return nil, err
		}
		output.ClientKeyPart = splitDek.ClientPart
		return output, nil
	}

	output.Dek = base64.StdEncoding.EncodeToString(dek)
	return output, nil
}

// ChangePassword re-wraps the DEK under a new password and kills every live
// session for the subject, then issues a fresh one.
//
// The sequence unwrap, re-seal, broadcast-invalidate is not safe to run twice
// concurrently against the same old credentials, so it is serialized by a
// short-lived per-subject lock. Failure to acquire means another change is in
// flight. The admin-wrapped DEK and encrypted fields are untouched.
func (uc *IdentityUseCase) ChangePassword(
	ctx context.Context,
	subjectID uuid.UUID,
	oldPassword, newPassword string,
) (*LoginOutput, error) {
	if err := uc.validateNewPassword(newPassword); err != nil {
		return nil, err
	}

	lockKey := passwordChangeLockPrefix + subjectID.String()
	acquired, err := uc.lockRepo.Acquire(ctx, lockKey, sessionDomain.PasswordChangeLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, sessionDomain.ErrPasswordChangeInProgress
	}
	defer func() {
		// Lock release is best-effort; the TTL bounds a leak.
		_ = uc.lockRepo.Release(ctx, lockKey)
	}()

	identity, err := uc.identityRepo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	ok, err := uc.passwordHasher.Verify([]byte(oldPassword), identity.PasswordHash)
	if err != nil || !ok {
		return nil, cryptoDomain.ErrInvalidCredentials
	}

	newSalt, newWrapped, err := uc.keyManager.ChangePassword(
		oldPassword, newPassword, identity.Salt, identity.UserWrappedDek,
	)
	if err != nil {
		return nil, err
	}

	newHash, err := uc.passwordHasher.Hash([]byte(newPassword))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash password")
	}

	// One UPDATE carries the new salt, wrap, and hash together; there is no
	// state where the hash accepts a password the wrap cannot serve.
	if err := uc.identityRepo.UpdateKeyWrap(ctx, subjectID, newSalt, newWrapped, newHash); err != nil {
		return nil, err
	}

	// Every live session dies, including the one that initiated the change.
	if err := uc.sessionUseCase.InvalidateAllForSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	dek, err := uc.keyManager.UnwrapUserDek(newPassword, newSalt, newWrapped)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dek)

	identity.Salt = newSalt
	identity.UserWrappedDek = newWrapped
	identity.PasswordHash = newHash

	return uc.openSession(ctx, identity, dek, false)
}

func (uc *IdentityUseCase) validateNewPassword(password string) error {
	err := validation.Validate(password,
		validation.Required.Error("password is required"),
		validation.Length(8, 128).Error("password must be between 8 and 128 characters"),
		appValidation.PasswordStrength{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireNumber:  true,
			RequireSpecial: true,
		},
	)
	return appValidation.WrapValidationError(err)
}

// UpdateProfile re-encrypts the profile fields under the same DEK in a single
// UPDATE.
func (uc *IdentityUseCase) UpdateProfile(
	ctx context.Context,
	subjectID uuid.UUID,
	dek []byte,
	fields domain.ProfileFields,
) error {
	encryptedFields, err := uc.fieldCodec.EncryptFields(fields, dek)
	if err != nil {
		return err
	}
	return uc.identityRepo.UpdateEncryptedFields(ctx, subjectID, encryptedFields)
}

// Profile decrypts the identity's profile fields with the caller-provided DEK.
func (uc *IdentityUseCase) Profile(
	ctx context.Context,
	subjectID uuid.UUID,
	dek []byte,
) (*domain.ProfileFields, error) {
	identity, err := uc.identityRepo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var fields domain.ProfileFields
	if err := uc.fieldCodec.DecryptFields(identity.EncryptedFields, dek, &fields); err != nil {
		return nil, err
	}
	return &fields, nil
}

// Authenticate resolves a bearer token through the session cache.
func (uc *IdentityUseCase) Authenticate(
	ctx context.Context,
	token string,
) (*sessionUsecase.VerifyResult, error) {
	return uc.sessionUseCase.Verify(ctx, token)
}
