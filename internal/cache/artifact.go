package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Artifact holds the raw bytes for one signature session: the unsigned
// document written when the session starts and the signature image attached
// when the tablet responds. The finalizer reads it once to assemble the
// signed document.
type Artifact struct {
	SessionID  string
	CompanyID  string
	Document   []byte
	Signature  []byte
	SignerName string
	CachedAt   time.Time
	ExpiresAt  time.Time
}

func (a *Artifact) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// ArtifactCache is a short-TTL in-memory store keyed by session id. Reads
// require the caller's company id; a mismatch behaves exactly like a miss so
// a guessed session id discloses nothing across tenants.
type ArtifactCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*Artifact
}

func NewArtifactCache(ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{
		ttl:     ttl,
		entries: make(map[string]*Artifact),
	}
}

func (c *ArtifactCache) Put(sessionID string, artifact Artifact) {
	now := time.Now()
	artifact.SessionID = sessionID
	artifact.CachedAt = now
	artifact.ExpiresAt = now.Add(c.ttl)

	c.mu.Lock()
	c.entries[sessionID] = &artifact
	c.mu.Unlock()
}

// Get returns a copy of the artifact, or nil on a miss. An expired entry is
// evicted on the spot and reported as a miss.
func (c *ArtifactCache) Get(sessionID, companyID string) *Artifact {
	c.mu.RLock()
	entry := c.entries[sessionID]
	c.mu.RUnlock()

	if entry == nil || entry.CompanyID != companyID {
		return nil
	}
	if entry.IsExpired(time.Now()) {
		c.Remove(sessionID)
		return nil
	}

	copied := *entry
	return &copied
}

// Update applies fn to the cached artifact under the lock, e.g. to attach the
// signature image to an already-cached document. Returns false on a miss,
// expiry, or company mismatch.
func (c *ArtifactCache) Update(sessionID, companyID string, fn func(*Artifact)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[sessionID]
	if entry == nil || entry.CompanyID != companyID {
		return false
	}
	if entry.IsExpired(time.Now()) {
		delete(c.entries, sessionID)
		return false
	}

	fn(entry)
	return true
}

func (c *ArtifactCache) Remove(sessionID string) {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

func (c *ArtifactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SweepExpired removes every expired entry regardless of read traffic. The
// expired keys are collected under a read lock first so the scan never holds
// the write lock.
func (c *ArtifactCache) SweepExpired() int {
	now := time.Now()

	c.mu.RLock()
	expired := make([]string, 0)
	for id, entry := range c.entries {
		if entry.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	c.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	c.mu.Lock()
	removed := 0
	for _, id := range expired {
		if entry, ok := c.entries[id]; ok && entry.IsExpired(now) {
			delete(c.entries, id)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		log.Info().Int("count", removed).Msg("swept expired signature artifacts")
	}
	return removed
}
