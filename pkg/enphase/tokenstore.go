package enphase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/condorsolar/condor/pkg/log"
)

// TokenState is the OAuth2 token material persisted between runs.
// ObtainedAt is always written together with AccessToken.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
}

// tokenFile is the on-disk document shape. It matches the original token
// file so an existing deployment keeps its session across an upgrade.
type tokenFile struct {
	TokenData  *TokenState `json:"token_data"`
	ObtainedAt int64       `json:"token_obtained_at"`
}

// TokenStore persists a TokenState to a single JSON file. A missing or
// corrupt file is treated as "no token"; only the write path can fail.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by the given path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the persisted token. It returns (nil, 0, nil) when the file
// is absent or unreadable so a corrupt store starts unauthenticated
// instead of killing the process.
func (s *TokenStore) Load(ctx context.Context) (*TokenState, int64, error) {
	if s == nil || s.path == "" {
		return nil, 0, nil
	}
	body, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Ctx(ctx).WarnContext(ctx, "token file unreadable, starting unauthenticated",
				slog.String("path", s.path), slog.Any("error", err))
		}
		return nil, 0, nil
	}
	var tf tokenFile
	if err := json.Unmarshal(body, &tf); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "token file corrupt, starting unauthenticated",
			slog.String("path", s.path), slog.Any("error", err))
		return nil, 0, nil
	}
	if tf.TokenData == nil || tf.TokenData.AccessToken == "" {
		return nil, 0, nil
	}
	return tf.TokenData, tf.ObtainedAt, nil
}

// Save writes the token and the time it was obtained. Both are written
// together so the stored ObtainedAt can never be stale relative to the
// token.
func (s *TokenStore) Save(ctx context.Context, tok *TokenState, obtainedAt int64) error {
	if s == nil || s.path == "" {
		return nil
	}
	body, err := json.Marshal(tokenFile{TokenData: tok, ObtainedAt: obtainedAt})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.path, body, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
