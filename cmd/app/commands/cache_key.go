package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
)

// RunCreateCacheKey generates a cryptographically secure 32-byte server-local cache key.
// Cache keys encrypt the server-held half of split DEKs before they reach the cache store.
// Key material is zeroed from memory after encoding.
// If keyID is empty, generates a default ID in format "cache-key-YYYY-MM-DD".
//
// KMS parameters (kmsProvider and kmsKeyURI) are required. The cache key is encrypted with
// KMS before output. For local development, use kmsProvider="localsecrets" with
// kmsKeyURI="base64key://...".
//
// Output format:
//   - CACHE_KEYS="<keyID>:<algorithm>:<base64-encoded-kms-ciphertext>"
//   - ACTIVE_CACHE_KEY_ID="<keyID>"
//   - KMS_PROVIDER="<provider>"
//   - KMS_KEY_URI="<uri>"
//
// Security: Never use localsecrets provider in production. Use cloud KMS providers
// (gcpkms, awskms, azurekeyvault).
func RunCreateCacheKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	keyID, algorithm, kmsProvider, kmsKeyURI string,
) error {
	// Validate required KMS parameters
	if kmsProvider == "" || kmsKeyURI == "" {
		return fmt.Errorf(
			"--kms-provider and --kms-key-uri are required\n\nFor local development, use:\n  --kms-provider=localsecrets --kms-key-uri=\"base64key://<32-byte-base64-key>\"\n\nFor production, use cloud KMS providers:\n  --kms-provider=gcpkms --kms-key-uri=\"gcpkms://projects/.../cryptoKeys/...\"\n  --kms-provider=awskms --kms-key-uri=\"awskms:///alias/...\"\n  --kms-provider=azurekeyvault --kms-key-uri=\"azurekeyvault://...\"",
		)
	}

	alg := cryptoDomain.Algorithm(algorithm)
	if alg != cryptoDomain.AESGCM && alg != cryptoDomain.ChaCha20 {
		return fmt.Errorf(
			"invalid algorithm: %s (valid options: %s, %s)",
			algorithm,
			cryptoDomain.AESGCM,
			cryptoDomain.ChaCha20,
		)
	}

	// Generate default key ID if not provided
	if keyID == "" {
		keyID = fmt.Sprintf("cache-key-%s", time.Now().Format("2006-01-02"))
	}

	// Generate a cryptographically secure 32-byte cache key
	cacheKey := make([]byte, 32)
	if _, err := rand.Read(cacheKey); err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}
	defer cryptoDomain.Zero(cacheKey)

	logger.Info("encrypting cache key with KMS", slog.String("provider", kmsProvider))

	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	// Encrypt cache key with KMS
	ciphertext, err := keeper.Encrypt(ctx, cacheKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt cache key with KMS: %w", err)
	}

	encodedKey := base64.StdEncoding.EncodeToString(ciphertext)

	fmt.Fprintln(writer, "# Cache Key Configuration (KMS Mode)")
	fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
	fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	fmt.Fprintf(writer, "CACHE_KEYS=\"%s:%s:%s\"\n", keyID, alg, encodedKey)
	fmt.Fprintf(writer, "ACTIVE_CACHE_KEY_ID=\"%s\"\n", keyID)
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "# For multiple cache keys (key rotation), encrypt each key with the same KMS key:")
	fmt.Fprintf(writer, "# CACHE_KEYS=\"%s:%s:%s,new-key:%s:base64-encoded-kms-ciphertext\"\n", keyID, alg, encodedKey, alg)
	fmt.Fprintln(writer, "# ACTIVE_CACHE_KEY_ID=\"new-key\"")

	return nil
}
