package service

import (
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// FieldCodecService implements FieldCodec atop the token codec.
//
// Records are explicit typed structs (one schema per record kind) rather than
// free-form maps, so writer and reader cannot silently drift apart in shape.
// The codec marshals the record to JSON, seals it under the owning identity's
// DEK, and persists only the opaque token.
type FieldCodecService struct {
	codec TokenCodec
}

// NewFieldCodec creates a new FieldCodecService using the provided token codec.
func NewFieldCodec(codec TokenCodec) *FieldCodecService {
	return &FieldCodecService{codec: codec}
}

// EncryptFields marshals the record to JSON and seals it under the DEK.
func (f *FieldCodecService) EncryptFields(record any, dek []byte) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	return f.codec.Seal(payload, dek)
}

// DecryptFields opens the token under the DEK and unmarshals the JSON payload
// into out. Returns ErrAuthenticationFailed when the token does not verify
// under the DEK.
func (f *FieldCodecService) DecryptFields(token string, dek []byte, out any) error {
	payload, err := f.codec.Open(token, dek)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: malformed field payload", cryptoDomain.ErrAuthenticationFailed)
	}

	return nil
}
