// Package fingerprint provides the stable per-install device identifier sent
// as X-Device-ID on every request.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/storage"
)

const (
	idPrefix  = "dev_"
	hashChars = 24
)

// Provider derives the device id once, persists it and caches it in memory.
type Provider struct {
	store storage.Store
	log   logger.Logger

	mu sync.Mutex
	id string

	hostname func() (string, error)
	newSeed  func() string
}

// New creates a Provider backed by store.
func New(store storage.Store, log logger.Logger) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{
		store:    store,
		log:      log,
		hostname: os.Hostname,
		newSeed:  uuid.NewString,
	}
}

// Fingerprint returns the persisted device id, generating and storing one on
// first use. A failed write still returns the generated id; it is kept in memory
// so the process stays consistent.
func (p *Provider) Fingerprint(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	stored, err := storage.GetString(ctx, p.store, storage.KeyDeviceID)
	switch {
	case err == nil && stored != "":
		p.id = stored
		return p.id, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("read device id: %w", err)
	}

	p.id = p.derive()
	if err := storage.SetString(ctx, p.store, storage.KeyDeviceID, p.id); err != nil {
		p.log.Warn().Err(err).Str("device_id", p.id).Msg("Failed to persist device id")
	}
	return p.id, nil
}

// ID is Fingerprint without the error; it returns "" when the store is unreadable.
func (p *Provider) ID(ctx context.Context) string {
	id, err := p.Fingerprint(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("Device fingerprint unavailable")
		return ""
	}
	return id
}

// Reset forgets the cached and persisted id.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	return p.store.Delete(ctx, storage.KeyDeviceID)
}

// derive hashes host traits with a random seed; the seed keeps two installs
// on the same machine distinct.
func (p *Provider) derive() string {
	host, err := p.hostname()
	if err != nil {
		host = "unknown"
	}
	material := strings.Join([]string{host, runtime.GOOS, runtime.GOARCH, p.newSeed()}, "|")
	sum := sha256.Sum256([]byte(material))
	return idPrefix + hex.EncodeToString(sum[:])[:hashChars]
}
