package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

// AuthService resolves API tokens to the owner they act for. Only the
// SHA-256 of a token is stored.
type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	apiKey, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Register stores token as an active key for ownerID. Registering the same
// token again updates its owner and name.
func (s *AuthService) Register(ctx context.Context, token, ownerID, name string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", domain.ErrInvalidKey)
	}
	if err := domain.ValidateKey(ownerID); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		OwnerID:   ownerID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

// Issue generates a random token, registers it and returns it. The token
// cannot be recovered later.
func (s *AuthService) Issue(ctx context.Context, ownerID, name string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := "dsk_" + hex.EncodeToString(buf)
	if err := s.Register(ctx, token, ownerID, name); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) Revoke(ctx context.Context, token string) error {
	return s.repo.Deactivate(ctx, HashToken(strings.TrimSpace(token)))
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
