package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// SplitCustodyService implements SplitCustody using a one-time-pad split.
//
// The server part is drawn fresh from a CSPRNG and the client part is the DEK
// XOR the server part. Because the pad is uniformly random and the same length
// as the DEK, neither half alone carries any information about the DEK; this
// holds exactly, not approximately. Reconstruction requires both halves, which
// is what forces server cooperation for decryption without the server ever
// holding the full key at rest.
type SplitCustodyService struct{}

// NewSplitCustody creates a new SplitCustodyService.
func NewSplitCustody() *SplitCustodyService {
	return &SplitCustodyService{}
}

// Split divides a 32-byte DEK into a server part and a client part, both
// base64-encoded. The server part differs across repeated calls for the same
// DEK because it is freshly drawn each time.
func (s *SplitCustodyService) Split(dek []byte) (cryptoDomain.SplitDek, error) {
	if len(dek) != cryptoDomain.DekSize {
		return cryptoDomain.SplitDek{}, cryptoDomain.ErrInvalidKeySize
	}

	serverPart := make([]byte, cryptoDomain.DekSize)
	if _, err := rand.Read(serverPart); err != nil {
		return cryptoDomain.SplitDek{}, fmt.Errorf("failed to generate server part: %w", err)
	}

	clientPart := make([]byte, cryptoDomain.DekSize)
	for i := range dek {
		clientPart[i] = dek[i] ^ serverPart[i]
	}

	split := cryptoDomain.SplitDek{
		ServerPart: base64.StdEncoding.EncodeToString(serverPart),
		ClientPart: base64.StdEncoding.EncodeToString(clientPart),
	}

	cryptoDomain.Zero(serverPart)
	cryptoDomain.Zero(clientPart)

	return split, nil
}

// Reconstruct recombines the two base64-encoded halves into the original DEK.
// Callers must zero the returned key after use.
func (s *SplitCustodyService) Reconstruct(serverPart, clientPart string) ([]byte, error) {
	server, err := base64.StdEncoding.DecodeString(serverPart)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidSplitPart
	}
	client, err := base64.StdEncoding.DecodeString(clientPart)
	if err != nil {
		cryptoDomain.Zero(server)
		return nil, cryptoDomain.ErrInvalidSplitPart
	}
	if len(server) != cryptoDomain.DekSize || len(client) != cryptoDomain.DekSize {
		cryptoDomain.Zero(server)
		cryptoDomain.Zero(client)
		return nil, cryptoDomain.ErrInvalidSplitPart
	}

	dek := make([]byte, cryptoDomain.DekSize)
	for i := range server {
		dek[i] = server[i] ^ client[i]
	}

	cryptoDomain.Zero(server)
	cryptoDomain.Zero(client)

	return dek, nil
}
