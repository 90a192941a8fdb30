// Package accounts is the durable account state store: signup, login and the
// delta-based progress sync that feeds the global counter.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"timekeeper/internal/progress"
	"timekeeper/internal/storage"
)

// CounterPublisher receives every new global counter value after it is durable.
type CounterPublisher interface {
	PublishGlobalCounter(value int64)
}

// Result is what Signup and Login return.
type Result struct {
	Identity string         `json:"identity"`
	Progress progress.State `json:"progress"`
}

// SyncResult is what SyncProgress returns.
type SyncResult struct {
	GlobalCounter int64
	Delta         int64
	Progress      progress.State
}

// Options tunes a Service.
type Options struct {
	BcryptCost int
	CacheSize  int
	CacheTTL   time.Duration
	Publisher  CounterPublisher
	Logger     zerolog.Logger
}

// Service owns the in-memory copy of the persisted document. Every mutation
// is prepared on a clone, written to the store, and only then swapped in, so a
// failed write leaves state unchanged.
type Service struct {
	mu        sync.Mutex
	store     storage.DocumentStore
	doc       storage.Document
	index     map[string]int
	cost      int
	cache     *credentialCache
	publisher CounterPublisher
	logger    zerolog.Logger
}

// NewService loads the document from store once.
func NewService(ctx context.Context, store storage.DocumentStore, opts Options) (*Service, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	s := &Service{
		store:     store,
		cost:      cost,
		cache:     newCredentialCache(opts.CacheSize, opts.CacheTTL),
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
	s.swap(doc)
	s.logger.Info().
		Int("accounts", len(doc.Accounts)).
		Int64("global_counter", doc.GlobalCounter).
		Msg("account state loaded")
	return s, nil
}

// SetPublisher attaches the counter publisher once the broadcaster exists.
func (s *Service) SetPublisher(publisher CounterPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = publisher
}

// GlobalCounter returns the current counter value.
func (s *Service) GlobalCounter() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.GlobalCounter
}

// Signup creates an account with default progress.
func (s *Service) Signup(ctx context.Context, identity, credential string) (Result, error) {
	identity, credential, err := requireCredentials(identity, credential)
	if err != nil {
		return Result{}, err
	}
	if s.exists(identity) {
		return Result{}, ErrDuplicateIdentity
	}
	hash, err := hashCredential(credential, s.cost)
	if err != nil {
		return Result{}, fmt.Errorf("hash credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[identity]; ok {
		return Result{}, ErrDuplicateIdentity
	}
	state := progress.Default()
	next := s.doc.Clone()
	next.Accounts = append(next.Accounts, storage.Account{Identity: identity, Credential: hash, Progress: &state})
	if err := s.store.Save(ctx, next); err != nil {
		return Result{}, fmt.Errorf("save state: %w", err)
	}
	s.swap(next)
	s.cache.remember(identity, credential)
	s.logger.Info().Str("identity", identity).Msg("account created")
	return Result{Identity: identity, Progress: state.Clone()}, nil
}

// Login verifies the credential and returns current progress, repairing
// legacy records that have none.
func (s *Service) Login(ctx context.Context, identity, credential string) (Result, error) {
	identity, credential, err := requireCredentials(identity, credential)
	if err != nil {
		return Result{}, err
	}
	if err := s.authenticate(identity, credential); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index[identity]
	if current := s.doc.Accounts[i].Progress; current != nil {
		return Result{Identity: identity, Progress: current.Clone()}, nil
	}
	state := progress.Default()
	next := s.doc.Clone()
	next.Accounts[i].Progress = &state
	if err := s.store.Save(ctx, next); err != nil {
		return Result{}, fmt.Errorf("save state: %w", err)
	}
	s.swap(next)
	s.logger.Info().Str("identity", identity).Msg("initialized missing progress")
	return Result{Identity: identity, Progress: state.Clone()}, nil
}

// SyncProgress replaces the account's progress with the sanitized submission
// and adds max(0, submitted - stored) elapsed seconds to the global counter.
// Comparing against the last persisted value makes stale or repeated
// submissions contribute nothing.
func (s *Service) SyncProgress(ctx context.Context, identity, credential string, submitted json.RawMessage) (SyncResult, error) {
	identity, credential, err := requireCredentials(identity, credential)
	if err != nil {
		return SyncResult{}, err
	}
	state, err := progress.Sanitize(submitted)
	if err != nil {
		if errors.Is(err, progress.ErrMalformed) {
			return SyncResult{}, &ValidationError{Field: "progress", Reason: "must be an object"}
		}
		return SyncResult{}, &ValidationError{Field: "progress"}
	}
	if err := s.authenticate(identity, credential); err != nil {
		return SyncResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index[identity]
	var stored int64
	if current := s.doc.Accounts[i].Progress; current != nil {
		stored = current.ElapsedSeconds
	}
	delta := state.ElapsedSeconds - stored
	if delta < 0 {
		delta = 0
	}

	next := s.doc.Clone()
	next.GlobalCounter += delta
	next.Accounts[i].Progress = &state
	if err := s.store.Save(ctx, next); err != nil {
		return SyncResult{}, fmt.Errorf("save state: %w", err)
	}
	s.swap(next)

	// Published under the lock so counter values reach the broadcaster in order.
	if s.publisher != nil {
		s.publisher.PublishGlobalCounter(next.GlobalCounter)
	}
	s.logger.Debug().
		Str("identity", identity).
		Int64("delta", delta).
		Int64("global_counter", next.GlobalCounter).
		Msg("progress synced")
	return SyncResult{GlobalCounter: next.GlobalCounter, Delta: delta, Progress: state.Clone()}, nil
}

// authenticate runs the expensive comparison outside the lock; credentials
// never change after signup, so the stored value read here stays valid.
func (s *Service) authenticate(identity, credential string) error {
	if s.cache.verified(identity, credential) {
		return nil
	}
	s.mu.Lock()
	i, ok := s.index[identity]
	var stored string
	if ok {
		stored = s.doc.Accounts[i].Credential
	}
	s.mu.Unlock()
	if !ok || !credentialMatches(stored, credential) {
		return ErrInvalidCredentials
	}
	s.cache.remember(identity, credential)
	return nil
}

func (s *Service) exists(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[identity]
	return ok
}

// swap installs doc as current state; callers hold s.mu or own s exclusively.
func (s *Service) swap(doc storage.Document) {
	index := make(map[string]int, len(doc.Accounts))
	for i, account := range doc.Accounts {
		index[account.Identity] = i
	}
	s.doc = doc
	s.index = index
}

func requireCredentials(identity, credential string) (string, string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", "", &ValidationError{Field: "identity"}
	}
	if credential == "" {
		return "", "", &ValidationError{Field: "credential"}
	}
	if len(credential) > maxCredentialBytes {
		return "", "", &ValidationError{Field: "credential", Reason: "is too long"}
	}
	return identity, credential, nil
}
