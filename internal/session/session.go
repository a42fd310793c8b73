// Package session reads the identity and bearer token owned by the external
// session store. The transport core never issues, refreshes, or persists
// credentials; it only attaches what the store currently holds.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/momnect/chatlink/internal/model"
)

// Store supplies the current identity and access token. Implementations must
// be safe for concurrent use; the connection manager and the outbound gateway
// read from the store on every handshake and send.
type Store interface {
	// Identity returns the signed-in user, false when nobody is signed in.
	Identity() (model.Identity, bool)

	// AccessToken returns the current bearer token, false when absent.
	// A missing token is not an error: the gateway accepts anonymous
	// handshakes and rejects them server-side if the room requires auth.
	AccessToken() (string, bool)
}

// NewDeviceID returns the ephemeral per-process session identifier. It is the
// only client-side state beyond the token, and it does not survive restarts.
func NewDeviceID() string {
	return "device-" + uuid.NewString()
}

// MemoryStore is a settable in-memory Store for tests and embedding callers.
type MemoryStore struct {
	mu       sync.RWMutex
	identity model.Identity
	hasUser  bool
	token    string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SignIn sets the identity and token.
func (s *MemoryStore) SignIn(id model.Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.hasUser = true
	s.token = token
}

// SignOut clears the identity and token.
func (s *MemoryStore) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = model.Identity{}
	s.hasUser = false
	s.token = ""
}

// SetToken replaces the token, e.g. after an external refresh.
func (s *MemoryStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryStore) Identity() (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.hasUser
}

func (s *MemoryStore) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// FileStore reads the JSON session blob the web client keeps under its
// "user-storage" key. Reads go to disk every time so an external refresh is
// picked up without restarting.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// storageBlob mirrors the persisted shape: {"state": {"accessToken": ..., "user": {...}}}.
type storageBlob struct {
	State struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID       string `json:"id"`
			Nickname string `json:"nickname"`
			Name     string `json:"name"`
			LoginID  string `json:"loginId"`
		} `json:"user"`
	} `json:"state"`
}

func (s *FileStore) load() (storageBlob, error) {
	var blob storageBlob
	data, err := os.ReadFile(s.path)
	if err != nil {
		return blob, fmt.Errorf("read session store: %w", err)
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return blob, fmt.Errorf("parse session store: %w", err)
	}
	return blob, nil
}

func (s *FileStore) Identity() (model.Identity, bool) {
	blob, err := s.load()
	if err != nil || blob.State.User.ID == "" {
		return model.Identity{}, false
	}

	// Display name falls back the way the web client does.
	name := blob.State.User.Nickname
	if name == "" {
		name = blob.State.User.Name
	}
	if name == "" {
		name = blob.State.User.LoginID
	}

	return model.Identity{UserID: blob.State.User.ID, Nickname: name}, true
}

func (s *FileStore) AccessToken() (string, bool) {
	blob, err := s.load()
	if err != nil || blob.State.AccessToken == "" {
		return "", false
	}
	return blob.State.AccessToken, true
}
