package lru

import (
	"errors"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-shield/internal/dns/domain"
)

func TestDecisionCache_HitMissAndPut(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	d := domain.BlockDecision{Blocked: true, MatchedRule: "doubleclick.net"}

	if _, ok := c.Get("ad.doubleclick.net"); ok {
		t.Fatalf("expected miss before put")
	}
	c.Put("ad.doubleclick.net", d)

	got, ok := c.Get("ad.doubleclick.net")
	if !ok || !got.Blocked || got.MatchedRule != "doubleclick.net" {
		t.Fatalf("unexpected get: ok=%v got=%+v", ok, got)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Capacity != 2 || st.Size != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestDecisionCache_EvictionAndLen(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.BlockDecision{Blocked: true})
	c.Put("b", domain.BlockDecision{})
	c.Put("c", domain.BlockDecision{})

	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2 after eviction", got)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if ev := c.Stats().Evictions; ev != 1 {
		t.Fatalf("evictions=%d want=1", ev)
	}
}

func TestDecisionCache_PurgeCountsEvictions(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.BlockDecision{})
	c.Put("b", domain.BlockDecision{})
	c.Purge()

	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 after purge", got)
	}
	if ev := c.Stats().Evictions; ev != 2 {
		t.Fatalf("evictions=%d want=2 after purge", ev)
	}
}

func TestDecisionCache_Disabled(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("x", domain.BlockDecision{Blocked: true})
	if _, ok := c.Get("x"); ok {
		t.Fatalf("expected miss in disabled cache")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 for disabled", got)
	}
	c.Purge()
	if st := c.Stats(); st.Capacity != 0 || st.Size != 0 || st.Misses != 0 {
		t.Fatalf("unexpected disabled stats: %+v", st)
	}
}

func TestNew_LRUError(t *testing.T) {
	orig := newLRU
	t.Cleanup(func() { newLRU = orig })
	newLRU = func(int, func(string, domain.BlockDecision)) (*lru.Cache[string, domain.BlockDecision], error) {
		return nil, errors.New("cache creation error")
	}

	if _, err := New(1); err == nil {
		t.Fatalf("expected error but got nil")
	}
}
