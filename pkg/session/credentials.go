package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/labsession/pkg/idx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// Persistent storage keys.
const (
	KeyCredentials = "session.credentials"
	KeyPrincipal   = "session.principal"
)

// KeyValueStore is durable storage that survives a restart of the client.
// Get reports found=false for a missing key rather than an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// CredentialPair is the access and refresh credential, always updated together.
type CredentialPair struct {
	Access  string
	Refresh string
	// ExpiresAt is when Access stops being accepted; zero if unknown.
	ExpiresAt time.Time
}

// Snapshot is one authenticated session as seen at a single instant.
type Snapshot struct {
	SessionID   idx.ID
	Credentials CredentialPair
	Principal   Principal
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	out.Principal = s.Principal.Clone()
	return out
}

// CredentialStore holds the single current session. Readers never block;
// writers are serialized and each write is mirrored to the KeyValueStore.
type CredentialStore struct {
	cur atomic.Pointer[Snapshot]

	mu  sync.Mutex // serializes writers and persistence
	kv  KeyValueStore
	log *slog.Logger
}

// NewCredentialStore creates an empty store. kv may be nil, in which case
// the session lives only in memory.
func NewCredentialStore(kv KeyValueStore, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slogx.Discard()
	}
	return &CredentialStore{kv: kv, log: logger.With("component", "credential_store")}
}

func (s *CredentialStore) load() *Snapshot { return s.cur.Load() }

// IsAuthenticated reports whether a session is held.
func (s *CredentialStore) IsAuthenticated() bool { return s.cur.Load() != nil }

// Snapshot returns a copy of the current session.
func (s *CredentialStore) Snapshot() (Snapshot, bool) {
	snap := s.cur.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

// Credentials returns the current credential pair.
func (s *CredentialStore) Credentials() (CredentialPair, bool) {
	snap := s.cur.Load()
	if snap == nil {
		return CredentialPair{}, false
	}
	return snap.Credentials, true
}

// Principal returns a copy of the current principal.
func (s *CredentialStore) Principal() (Principal, bool) {
	snap := s.cur.Load()
	if snap == nil {
		return Principal{}, false
	}
	return snap.Principal.Clone(), true
}

// Install starts a new session, replacing any existing one.
func (s *CredentialStore) Install(ctx context.Context, creds CredentialPair, p Principal) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{SessionID: idx.New(), Credentials: creds, Principal: p.Clone()}
	s.cur.Store(snap)
	s.persistCredentials(ctx, snap)
	s.persistPrincipal(ctx, snap)
	return snap.clone()
}

// Rotate replaces the credentials of session id. An empty Refresh keeps the
// one already held. It fails with ErrNotAuthenticated if that session has
// ended in the meantime, so a late refresh never revives it.
func (s *CredentialStore) Rotate(ctx context.Context, id idx.ID, creds CredentialPair) (CredentialPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	if cur == nil || cur.SessionID != id {
		return CredentialPair{}, ErrNotAuthenticated
	}
	if creds.Refresh == "" {
		creds.Refresh = cur.Credentials.Refresh
	}

	next := &Snapshot{SessionID: cur.SessionID, Credentials: creds, Principal: cur.Principal}
	if !s.cur.CompareAndSwap(cur, next) {
		return CredentialPair{}, ErrNotAuthenticated
	}
	s.persistCredentials(ctx, next)
	return creds, nil
}

// ReplacePrincipal swaps the principal of session id wholesale.
func (s *CredentialStore) ReplacePrincipal(ctx context.Context, id idx.ID, p Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	if cur == nil || cur.SessionID != id {
		return ErrNotAuthenticated
	}

	next := &Snapshot{SessionID: cur.SessionID, Credentials: cur.Credentials, Principal: p.Clone()}
	s.cur.Store(next)
	s.persistPrincipal(ctx, next)
	return nil
}

// Clear ends whatever session is held and reports whether there was one.
func (s *CredentialStore) Clear(ctx context.Context) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx, nil)
}

// ClearSession ends the session only if it is still session id.
func (s *CredentialStore) ClearSession(ctx context.Context, id idx.ID) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx, &id)
}

func (s *CredentialStore) clearLocked(ctx context.Context, id *idx.ID) (Snapshot, bool) {
	prev := s.cur.Load()
	if prev == nil || (id != nil && prev.SessionID != *id) {
		return Snapshot{}, false
	}
	s.cur.Store(nil)
	s.deletePersisted(ctx)
	return *prev, true
}

type credentialsRecord struct {
	SessionID string    `json:"session_id"`
	Access    string    `json:"access_token"`
	Refresh   string    `json:"refresh_token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Load rehydrates the session from the KeyValueStore. A missing or
// unreadable half discards both, so the store is never half-authenticated.
func (s *CredentialStore) Load(ctx context.Context) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return Snapshot{}, false
	}

	snap, err := s.readPersisted(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "discarding persisted session", "error", err)
		s.deletePersisted(ctx)
		return Snapshot{}, false
	}
	if snap == nil {
		return Snapshot{}, false
	}

	s.cur.Store(snap)
	return snap.clone(), true
}

var (
	errHalfPersisted = errors.New("only one of credentials and principal persisted")
	errNoAccessToken = errors.New("persisted credentials have no access token")
)

func (s *CredentialStore) readPersisted(ctx context.Context) (*Snapshot, error) {
	rawCreds, credsFound, err := s.kv.Get(ctx, KeyCredentials)
	if err != nil {
		return nil, err
	}
	rawPrincipal, principalFound, err := s.kv.Get(ctx, KeyPrincipal)
	if err != nil {
		return nil, err
	}
	if !credsFound && !principalFound {
		return nil, nil
	}
	if !credsFound || !principalFound {
		return nil, errHalfPersisted
	}

	var rec credentialsRecord
	if err := json.Unmarshal(rawCreds, &rec); err != nil {
		return nil, err
	}
	if rec.Access == "" {
		return nil, errNoAccessToken
	}
	id, err := idx.Parse(rec.SessionID)
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := json.Unmarshal(rawPrincipal, &p); err != nil {
		return nil, err
	}

	return &Snapshot{
		SessionID: id,
		Credentials: CredentialPair{
			Access:    rec.Access,
			Refresh:   rec.Refresh,
			ExpiresAt: rec.ExpiresAt,
		},
		Principal: p,
	}, nil
}

func (s *CredentialStore) persistCredentials(ctx context.Context, snap *Snapshot) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(credentialsRecord{
		SessionID: snap.SessionID.String(),
		Access:    snap.Credentials.Access,
		Refresh:   snap.Credentials.Refresh,
		ExpiresAt: snap.Credentials.ExpiresAt,
	})
	if err == nil {
		err = s.kv.Put(ctx, KeyCredentials, raw)
	}
	if err != nil {
		s.log.WarnContext(ctx, "persist credentials failed", "error", err)
	}
}

func (s *CredentialStore) persistPrincipal(ctx context.Context, snap *Snapshot) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(snap.Principal)
	if err == nil {
		err = s.kv.Put(ctx, KeyPrincipal, raw)
	}
	if err != nil {
		s.log.WarnContext(ctx, "persist principal failed", "error", err)
	}
}

func (s *CredentialStore) deletePersisted(ctx context.Context) {
	if s.kv == nil {
		return
	}
	for _, key := range []string{KeyCredentials, KeyPrincipal} {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.log.WarnContext(ctx, "delete persisted session failed", "key", key, "error", err)
		}
	}
}
