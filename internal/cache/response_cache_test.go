package cache

import (
	"testing"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

func TestFingerprintIsStableAndDistinguishesExtraCacheKey(t *testing.T) {
	a := Fingerprint("gpt", `{"messages":[]}`, "")
	b := Fingerprint("gpt", `{"messages":[]}`, "")
	if a != b {
		t.Fatal("expected the same inputs to fingerprint identically")
	}
	c := Fingerprint("gpt", `{"messages":[]}`, "candidate_0")
	if a == c {
		t.Fatal("expected extra_cache_key to change the fingerprint")
	}
}

func TestResponseCacheGetPutRoundTrip(t *testing.T) {
	c := New(Options{})
	result := inference.ModelInferenceResult{ID: "r1"}
	c.Put("fp1", result)

	got, ok := c.Get("fp1")
	if !ok || got.ID != "r1" {
		t.Fatalf("Get = %+v, %v, want r1, true", got, ok)
	}
}

func TestResponseCacheGetMissingKey(t *testing.T) {
	c := New(Options{})
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestResponseCacheTTLExpiry(t *testing.T) {
	c := New(Options{TTL: time.Millisecond})
	c.Put("fp1", inference.ModelInferenceResult{ID: "r1"})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("fp1"); ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestResponseCacheEvictsOldestOverCapacity(t *testing.T) {
	c := New(Options{MaxSize: 2})
	c.Put("fp1", inference.ModelInferenceResult{ID: "r1"})
	time.Sleep(time.Millisecond)
	c.Put("fp2", inference.ModelInferenceResult{ID: "r2"})
	time.Sleep(time.Millisecond)
	c.Put("fp3", inference.ModelInferenceResult{ID: "r3"})

	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}
	if _, ok := c.Get("fp1"); ok {
		t.Fatal("expected the oldest entry (fp1) to have been evicted")
	}
	if _, ok := c.Get("fp3"); !ok {
		t.Fatal("expected the newest entry (fp3) to still be present")
	}
}

func TestResponseCacheLookupRespectsMode(t *testing.T) {
	c := New(Options{})
	c.Put("fp1", inference.ModelInferenceResult{ID: "r1"})

	if _, ok := c.Lookup(ModeOff, "fp1"); ok {
		t.Fatal("ModeOff must not read from the cache")
	}
	if _, ok := c.Lookup(ModeWriteOnly, "fp1"); ok {
		t.Fatal("ModeWriteOnly must not read from the cache")
	}
	if got, ok := c.Lookup(ModeOn, "fp1"); !ok || got.ID != "r1" {
		t.Fatalf("ModeOn must read the cache, got %+v, %v", got, ok)
	}
	if got, ok := c.Lookup(ModeReadOnly, "fp1"); !ok || got.ID != "r1" {
		t.Fatalf("ModeReadOnly must read the cache, got %+v, %v", got, ok)
	}
}

func TestResponseCacheStoreRespectsMode(t *testing.T) {
	c := New(Options{})

	c.Store(ModeOff, "fp1", inference.ModelInferenceResult{ID: "r1"})
	if _, ok := c.Get("fp1"); ok {
		t.Fatal("ModeOff must not write to the cache")
	}

	c.Store(ModeReadOnly, "fp1", inference.ModelInferenceResult{ID: "r1"})
	if _, ok := c.Get("fp1"); ok {
		t.Fatal("ModeReadOnly must not write to the cache")
	}

	c.Store(ModeWriteOnly, "fp2", inference.ModelInferenceResult{ID: "r2"})
	if _, ok := c.Get("fp2"); !ok {
		t.Fatal("ModeWriteOnly must write to the cache")
	}

	c.Store(ModeOn, "fp3", inference.ModelInferenceResult{ID: "r3"})
	if _, ok := c.Get("fp3"); !ok {
		t.Fatal("ModeOn must write to the cache")
	}
}
