// Package credentials holds the bearer token used for every authenticated request.
//
// A [Store] is rehydrated from a [Storage] backend on construction and writes
// its whole state back on every change, so a new process sees the token the
// last one stored.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "auth-storage"

const stateVersion = 0

type persistedState struct {
	State   tokenState `json:"state"`
	Version int        `json:"version"`
}

type tokenState struct {
	Token *string `json:"token"`
}

// Store is the single source of truth for the bearer token.
type Store struct {
	mu      sync.RWMutex
	token   string
	storage Storage
	key     string
	logger  *log.Logger
}

// NewStore loads any persisted token from storage. A missing or unreadable
// entry yields an empty store rather than an error.
func NewStore(ctx context.Context, storage Storage, key string, logger *log.Logger) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: credential storage is required", shared.ErrInvalidConfig)
	}
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	s := &Store{storage: storage, key: key, logger: logger}

	raw, err := storage.GetItem(ctx, key)
	switch {
	case errors.Is(err, ErrItemNotFound):
		return s, nil
	case err != nil:
		return nil, err
	}

	var persisted persistedState
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		logger.Warn("discarding unreadable credential state", "key", key, "error", err)
		return s, nil
	}

	if persisted.State.Token != nil {
		s.token = *persisted.State.Token
	}
	return s, nil
}

// Current returns the token and whether one is set.
func (s *Store) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the token and persists the store.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token must not be empty", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	return s.persist(ctx)
}

// Clear forgets the token and persists the empty store.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	return s.persist(ctx)
}

// persist writes the full store. Callers hold mu.
func (s *Store) persist(ctx context.Context) error {
	state := persistedState{Version: stateVersion}
	if s.token != "" {
		tok := s.token
		state.State.Token = &tok
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	if err := s.storage.SetItem(ctx, s.key, string(data)); err != nil {
		return err
	}

	s.logger.Debug("persisted credential state", "key", s.key, "authenticated", s.token != "")
	return nil
}

// TokenSource adapts the store for [oauth2.Transport]. It reads the current
// token on every call so a logout takes effect immediately.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{s}
}

type storeTokenSource struct{ s *Store }

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	tok, ok := ts.s.Current()
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
