package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprint_KnownVector(t *testing.T) {
	got := Fingerprint("gpt-3.5-turbo", "{'temperature': 0.5}", "The quick brown fox jumps over the lazy dog.", "What does the fox say?", 1)
	want := "55ce2e13d38aa7fb6ec848053285edb4"
	if got != want {
		t.Fatalf("Fingerprint() = %q, want %q", got, want)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("m", "p", "s", "u", 3)
	b := Fingerprint("m", "p", "s", "u", 3)
	if a != b {
		t.Fatalf("fingerprint not stable: %q vs %q", a, b)
	}
}

func TestCache_FetchMiss(t *testing.T) {
	c := New(Options{ImmediateWrite: true})
	if _, ok := c.Fetch("m", "p", "s", "u", 0); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_StoreThenFetch(t *testing.T) {
	c := New(Options{ImmediateWrite: true})
	c.Store("m", "p", "s", "u", "OUTPUT", 0)

	out, ok := c.Fetch("m", "p", "s", "u", 0)
	if !ok || out != "OUTPUT" {
		t.Fatalf("Fetch() = (%q, %v), want (OUTPUT, true)", out, ok)
	}
}

func TestCache_DeferredWrite(t *testing.T) {
	c := New(Options{ImmediateWrite: false})
	c.Store("m", "p", "s", "u", "OUTPUT", 0)

	all, err := c.backend.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("backend should be untouched before Close, got %d entries", len(all))
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	all, err = c.backend.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("backend should contain 1 entry after Close, got %d", len(all))
	}
}

func TestCache_DeferredWrite_VisibleViaNewEntries(t *testing.T) {
	c := New(Options{ImmediateWrite: false})
	c.Store("m", "p", "s", "u", "OUTPUT", 0)

	entries := c.NewEntries()
	if len(entries) != 1 {
		t.Fatalf("NewEntries() should show uncommitted entry, got %d", len(entries))
	}
}

func TestCache_AddFromMap_KeyConflict(t *testing.T) {
	c := New(Options{ImmediateWrite: true})
	entry := Entry{Model: "m", Parameters: "p", SystemPrompt: "s", UserPrompt: "u", Output: "A", Iteration: 0, Timestamp: 1}
	fp := entry.Key()

	if err := c.AddFromMap(map[string]Entry{fp: entry}, true); err != nil {
		t.Fatal(err)
	}

	conflicting := entry
	conflicting.Output = "B"
	err := c.AddFromMap(map[string]Entry{fp: conflicting}, true)
	if err == nil {
		t.Fatal("expected KeyConflictError")
	}
	if _, ok := err.(*KeyConflictError); !ok {
		t.Fatalf("expected *KeyConflictError, got %T", err)
	}
}

func TestCache_JSONLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.jsonl")

	c := New(Options{ImmediateWrite: true})
	c.Store("m1", "p1", "s1", "u1", "out1", 0)
	c.Store("m2", "p2", "s2", "u2", "out2", 1)

	if err := c.WriteJSONL(path); err != nil {
		t.Fatal(err)
	}

	restored, err := FromJSONL(path, Options{ImmediateWrite: true})
	if err != nil {
		t.Fatal(err)
	}

	original, err := c.All()
	if err != nil {
		t.Fatal(err)
	}
	roundTripped, err := restored.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(original) != len(roundTripped) {
		t.Fatalf("key set size mismatch: %d vs %d", len(original), len(roundTripped))
	}
	for fp := range original {
		if _, ok := roundTripped[fp]; !ok {
			t.Fatalf("missing fingerprint %s after round-trip", fp)
		}
	}
}

func TestHashKeySet_MatchesOnSameKeys(t *testing.T) {
	keys1 := []string{"a", "b", "c"}
	keys2 := []string{"c", "a", "b"}
	if HashKeySet(keys1) != HashKeySet(keys2) {
		t.Fatal("hash should be order-independent")
	}
}

func TestHashKeySet_DiffersOnDifferentKeys(t *testing.T) {
	if HashKeySet([]string{"a", "b"}) == HashKeySet([]string{"a", "c"}) {
		t.Fatal("hash should differ for different key sets")
	}
}

func TestCanonicalParameters_StableAcrossMapOrder(t *testing.T) {
	a := CanonicalParameters(map[string]any{"temperature": 0.5, "top_p": 1})
	b := CanonicalParameters(map[string]any{"top_p": 1, "temperature": 0.5})
	if a != b {
		t.Fatalf("canonical parameters should be order-independent: %q vs %q", a, b)
	}
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	entry := Entry{Model: "m", Parameters: "p", SystemPrompt: "s", UserPrompt: "u", Output: "out", Iteration: 0, Timestamp: 42}
	if err := backend.Put(entry.Key(), entry); err != nil {
		t.Fatal(err)
	}

	got, ok := backend.Get(entry.Key())
	if !ok {
		t.Fatal("expected hit")
	}
	if !got.Equal(entry) {
		t.Fatalf("round-tripped entry mismatch: %+v vs %+v", got, entry)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sqlite file to exist: %v", err)
	}
}
