package credential

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Directory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Directory is the in-memory credential set backed by a Repository.
//
// All public methods are thread-safe. Readers only hold the lock for the
// duration of a map scan.
type Directory struct {
	repo    Repository
	mu      sync.RWMutex
	byAlias map[string]Credential
	logger  Logger
	changes chan struct{}
}

// NewDirectory creates an empty directory. Call Load to populate it.
func NewDirectory(repo Repository) *Directory {
	return &Directory{
		repo:    repo,
		byAlias: make(map[string]Credential),
		logger:  noopLogger{},
		changes: make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// Load replaces the in-memory set with the repository contents.
func (d *Directory) Load(ctx context.Context) error {
	creds, err := d.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	byAlias := make(map[string]Credential, len(creds))
	for _, c := range creds {
		c.MAC = NormalizeMAC(c.MAC)
		byAlias[c.Alias] = c
	}

	d.mu.Lock()
	d.byAlias = byAlias
	d.mu.Unlock()

	d.logger.Info("credentials loaded", "count", len(byAlias))
	return nil
}

// Add validates, persists and caches c.
func (d *Directory) Add(ctx context.Context, c Credential) (Credential, error) {
	c.MAC = NormalizeMAC(c.MAC)
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byAlias[c.Alias]; exists {
		return Credential{}, ErrAliasExists
	}
	for _, existing := range d.byAlias {
		if existing.MAC == c.MAC {
			return Credential{}, ErrMACExists
		}
	}
	if err := d.repo.Create(ctx, c); err != nil {
		return Credential{}, err
	}

	d.byAlias[c.Alias] = c
	d.logger.Info("credential added", "alias", c.Alias, "mac", c.MAC)
	d.notify()
	return c, nil
}

// Remove deletes a credential by alias.
func (d *Directory) Remove(ctx context.Context, alias string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byAlias[alias]; !exists {
		return ErrNotFound
	}
	if err := d.repo.Delete(ctx, alias); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	delete(d.byAlias, alias)
	d.logger.Info("credential removed", "alias", alias)
	d.notify()
	return nil
}

// Seed adds every credential whose alias is not yet registered and
// returns how many were added. An invalid seed is an error.
func (d *Directory) Seed(ctx context.Context, seeds []Credential) (int, error) {
	added := 0
	for _, c := range seeds {
		if _, ok := d.Get(c.Alias); ok {
			continue
		}
		if _, err := d.Add(ctx, c); err != nil {
			return added, fmt.Errorf("seeding credential %q: %w", c.Alias, err)
		}
		added++
	}
	return added, nil
}

// Get returns the credential registered under alias.
func (d *Directory) Get(alias string) (Credential, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.byAlias[alias]
	return c, ok
}

// List returns every credential sorted by alias.
func (d *Directory) List() []Credential {
	d.mu.RLock()
	out := make([]Credential, 0, len(d.byAlias))
	for _, c := range d.byAlias {
		out = append(out, c)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Len returns the number of credentials.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byAlias)
}

// LookupMAC resolves a peer address to a copy of its credential.
// The comparison ignores case.
func (d *Directory) LookupMAC(mac string) (Credential, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.byAlias {
		if strings.EqualFold(c.MAC, mac) {
			return c, true
		}
	}
	return Credential{}, false
}

// Allowed returns the MACs the node may pair with: every credential except
// the one registered under excludeAlias. An empty alias excludes nothing.
func (d *Directory) Allowed(excludeAlias string) []string {
	d.mu.RLock()
	macs := make([]string, 0, len(d.byAlias))
	for alias, c := range d.byAlias {
		if excludeAlias != "" && alias == excludeAlias {
			continue
		}
		macs = append(macs, c.MAC)
	}
	d.mu.RUnlock()

	sort.Strings(macs)
	return macs
}

// Changes fires after every add or remove. Bursts coalesce into one signal.
func (d *Directory) Changes() <-chan struct{} {
	return d.changes
}

func (d *Directory) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}
