package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Cache maps fingerprints to Entry values over a pluggable Backend, tracking
// which entries were produced in the current session (NewEntries) and, when
// ImmediateWrite is false, staging writes until Close commits them
// (DeferredEntries). See SPEC_FULL.md §4.2 and the Open Question decisions
// in DESIGN.md for the immediate_write=false-outside-a-session behavior.
type Cache struct {
	mu      sync.RWMutex
	backend Backend

	// deferred holds entries not yet committed to backend, when
	// ImmediateWrite is false.
	deferred map[string]Entry
	// newEntries holds every entry produced via Store this session, plus
	// those added via AddFromMap or FetchMissingFromRemote, committed or
	// not, for optional remote upload on Close.
	newEntries map[string]Entry

	immediateWrite bool
	remote         *RemoteClient
	remoteBackups  bool
}

// Options configures a new Cache.
type Options struct {
	Backend        Backend
	ImmediateWrite bool
	Remote         *RemoteClient
	RemoteBackups  bool
}

// New constructs a Cache over the given backend. If opts.Backend is nil, an
// empty MemoryBackend is used.
func New(opts Options) *Cache {
	backend := opts.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Cache{
		backend:        backend,
		deferred:       make(map[string]Entry),
		newEntries:     make(map[string]Entry),
		immediateWrite: opts.ImmediateWrite,
		remote:         opts.Remote,
		remoteBackups:  opts.RemoteBackups,
	}
}

// Fetch looks up a cached output for the given call shape. It never
// returns an error: a miss is reported solely via ok=false.
func (c *Cache) Fetch(model, parameters, systemPrompt, userPrompt string, iteration int) (output string, ok bool) {
	fingerprint := Fingerprint(model, parameters, systemPrompt, userPrompt, iteration)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, found := c.deferred[fingerprint]; found {
		return e.Output, true
	}
	if e, found := c.backend.Get(fingerprint); found {
		return e.Output, true
	}
	return "", false
}

// Store records a new entry for the given call shape and response. It is
// always added to NewEntries; it is committed to the backend immediately
// when ImmediateWrite is true, otherwise staged in DeferredEntries until
// Close.
func (c *Cache) Store(model, parameters, systemPrompt, userPrompt, response string, iteration int) Entry {
	entry := Entry{
		Model:        model,
		Parameters:   parameters,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Output:       response,
		Iteration:    iteration,
		Timestamp:    time.Now().Unix(),
	}
	fingerprint := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.newEntries[fingerprint] = entry
	if c.immediateWrite {
		_ = c.backend.Put(fingerprint, entry)
	} else {
		c.deferred[fingerprint] = entry
	}
	return entry
}

// NewEntries returns a copy of the entries produced by Store this session,
// plus those added via AddFromMap or FetchMissingFromRemote, whether or not
// they have been committed to the backend yet.
func (c *Cache) NewEntries() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.newEntries))
	for k, v := range c.newEntries {
		out[k] = v
	}
	return out
}

// AddFromMap bulk-inserts entries. If any incoming fingerprint already
// exists in the cache (backend or deferred) with a body that differs from
// the incoming one, the whole call fails with a *KeyConflictError and no
// entries from this call are written.
func (c *Cache) AddFromMap(entries map[string]Entry, writeNow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fingerprint, incoming := range entries {
		if existing, found := c.deferred[fingerprint]; found && !existing.Equal(incoming) {
			return &KeyConflictError{Fingerprint: fingerprint, Existing: existing, Incoming: incoming}
		}
		if existing, found := c.backend.Get(fingerprint); found && !existing.Equal(incoming) {
			return &KeyConflictError{Fingerprint: fingerprint, Existing: existing, Incoming: incoming}
		}
	}

	for fingerprint, incoming := range entries {
		c.newEntries[fingerprint] = incoming
		if writeNow || c.immediateWrite {
			_ = c.backend.Put(fingerprint, incoming)
		} else {
			c.deferred[fingerprint] = incoming
		}
	}
	return nil
}

// All returns every entry visible through this cache: committed backend
// entries overlaid with any not-yet-committed deferred entries.
func (c *Cache) All() (map[string]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := c.backend.All()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(all)+len(c.deferred))
	for k, v := range all {
		out[k] = v
	}
	for k, v := range c.deferred {
		out[k] = v
	}
	return out, nil
}

// Close commits any deferred entries to the backend and, if configured,
// uploads NewEntries to the remote cache with a bounded timeout. It is safe
// to call more than once; later calls find nothing deferred to commit, but
// upload NewEntries again when remote backups are enabled. Close is the
// session-exit operation referenced throughout SPEC_FULL.md: callers that
// open a Cache for the duration of a run should `defer cache.Close()`
// immediately after construction so the flush happens on every exit path,
// including panics unwound by the caller and cancellation.
func (c *Cache) Close() error {
	c.mu.Lock()
	for fingerprint, entry := range c.deferred {
		_ = c.backend.Put(fingerprint, entry)
	}
	c.deferred = make(map[string]Entry)
	newEntries := make(map[string]Entry, len(c.newEntries))
	for k, v := range c.newEntries {
		newEntries[k] = v
	}
	c.mu.Unlock()

	var remoteErr error
	if c.remoteBackups && c.remote != nil && len(newEntries) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.remote.UploadBatch(ctx, newEntries); err != nil {
			// Logged by the caller via the returned error; remote failures
			// never block local Close from succeeding.
			remoteErr = err
		}
	}
	if err := c.backend.Close(); err != nil {
		return err
	}
	return remoteErr
}

// FetchMissingFromRemote asks the remote cache for its full entry set and
// adds any fingerprints this cache does not already have. Conflicts on
// fingerprints that exist locally with a different body are skipped rather
// than overwritten — the remote is treated as a supplementary source, never
// an authority that can clobber local state.
func (c *Cache) FetchMissingFromRemote(ctx context.Context) (int, error) {
	if c.remote == nil {
		return 0, nil
	}
	remoteEntries, err := c.remote.FetchAll(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for fingerprint, entry := range remoteEntries {
		if _, found := c.backend.Get(fingerprint); found {
			continue
		}
		if _, found := c.deferred[fingerprint]; found {
			continue
		}
		if c.immediateWrite {
			_ = c.backend.Put(fingerprint, entry)
		} else {
			c.deferred[fingerprint] = entry
		}
		c.newEntries[fingerprint] = entry
		added++
	}
	return added, nil
}

// WriteJSONL exports every visible entry as one JSON object per line of the
// shape {"<fingerprint>": {...entry fields...}}.
func (c *Cache) WriteJSONL(path string) error {
	all, err := c.All()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for fingerprint, entry := range all {
		line := map[string]Entry{fingerprint: entry}
		b, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("cache: marshal %s: %w", fingerprint, err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("cache: write %s: %w", path, err)
		}
	}
	return w.Flush()
}

// FromJSONL constructs a Cache whose backend is pre-populated from a JSONL
// export written by WriteJSONL.
func FromJSONL(path string, opts Options) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close()

	c := New(opts)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entries map[string]Entry
		if err := json.Unmarshal(line, &entries); err != nil {
			return nil, fmt.Errorf("cache: parse line: %w", err)
		}
		if err := c.AddFromMap(entries, true); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan %s: %w", path, err)
	}
	return c, nil
}

// WriteKVStore is WriteJSONL's sqlite-backed equivalent: it opens (creating
// if necessary) a sqlite database at path and writes every visible entry
// into it, overwriting rows that share a fingerprint. The cache's own
// backend is left unchanged.
func (c *Cache) WriteKVStore(path string) error {
	backend, err := NewSQLiteBackend(path)
	if err != nil {
		return err
	}
	defer backend.Close()

	all, err := c.All()
	if err != nil {
		return err
	}
	for fingerprint, entry := range all {
		if err := backend.Put(fingerprint, entry); err != nil {
			return err
		}
	}
	return nil
}

// FromKVStore constructs a Cache backed directly by the sqlite database at
// path.
func FromKVStore(path string, opts Options) (*Cache, error) {
	backend, err := NewSQLiteBackend(path)
	if err != nil {
		return nil, err
	}
	opts.Backend = backend
	return New(opts), nil
}

// FromRemote constructs an empty Cache and immediately populates it from
// the remote cache service.
func FromRemote(ctx context.Context, baseURL, apiKey string, opts Options) (*Cache, error) {
	remote := NewRemoteClient(baseURL, apiKey)
	opts.Remote = remote
	c := New(opts)
	if _, err := c.FetchMissingFromRemote(ctx); err != nil {
		return c, &RemoteError{Op: "from_remote", Err: err}
	}
	return c, nil
}
