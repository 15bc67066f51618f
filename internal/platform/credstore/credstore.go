// Package credstore looks up the activation credentials NGL caches per app.
package credstore

import (
	"context"
	"sync"

	"github.com/technosupport/frl-toolbox/internal/license"
)

// Store is a read-only view of cached credentials.
type Store interface {
	SavedCredential(ctx context.Context, key string) (string, bool, error)
}

// Key is the store key of the credential cached for an app.
func Key(appID, certGroupID string) string {
	return license.AppKey{AppID: appID, CertGroupID: certGroupID}.CredentialKey()
}

// MapStore is an in-memory store.
type MapStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

func NewMapStore(creds map[string]string) *MapStore {
	s := &MapStore{creds: make(map[string]string, len(creds))}
	for k, v := range creds {
		s.creds[k] = v
	}
	return s
}

func (s *MapStore) SavedCredential(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[key]
	return v, ok, nil
}

func (s *MapStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key] = value
}
