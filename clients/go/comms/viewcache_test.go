package comms

import "testing"

func TestViewStartsStale(t *testing.T) {
	c := NewViewCache()

	if c.State("channels") != ViewStale {
		t.Fatal("unknown views should start stale")
	}
	if _, ok := c.Get("channels"); ok {
		t.Fatal("stale views must not serve a payload")
	}
}

func TestFetchCycle(t *testing.T) {
	c := NewViewCache()

	seq := c.Begin("channels")
	if c.State("channels") != ViewRefetching {
		t.Fatal("Begin should move the view to refetching")
	}

	if !c.Complete("channels", seq, "payload-1") {
		t.Fatal("current fetch should install")
	}
	if c.State("channels") != ViewFresh {
		t.Fatal("completed view should be fresh")
	}
	got, ok := c.Get("channels")
	if !ok || got != "payload-1" {
		t.Fatalf("expected payload-1, got %v", got)
	}
}

func TestSupersededFetchDropped(t *testing.T) {
	c := NewViewCache()

	first := c.Begin("search")
	second := c.Begin("search")

	// The older response arrives late and must be dropped.
	if c.Complete("search", first, "old") {
		t.Fatal("superseded fetch should not install")
	}
	if c.State("search") != ViewRefetching {
		t.Fatal("view should still be waiting on the newest fetch")
	}

	if !c.Complete("search", second, "new") {
		t.Fatal("newest fetch should install")
	}
	got, _ := c.Get("search")
	if got != "new" {
		t.Fatalf("expected new, got %v", got)
	}
}

func TestMarkStaleInvalidatesFreshView(t *testing.T) {
	c := NewViewCache()

	seq := c.Begin("channels")
	c.Complete("channels", seq, "payload")

	c.MarkStale("channels")
	if c.State("channels") != ViewStale {
		t.Fatal("mutation should stale the view")
	}
	if _, ok := c.Get("channels"); ok {
		t.Fatal("stale view must not serve its old payload")
	}
}

func TestMutationDuringRefetchSupersedes(t *testing.T) {
	c := NewViewCache()

	seq := c.Begin("messages:ch-1")
	// A mutation lands while the fetch is in flight; its response
	// predates the mutation and must not install.
	c.MarkStale("messages:ch-1")

	if c.Complete("messages:ch-1", seq, "pre-mutation") {
		t.Fatal("response from before the mutation should be dropped")
	}
	if c.State("messages:ch-1") != ViewStale {
		t.Fatal("view should remain stale until refetched")
	}
}

func TestFailReturnsToStale(t *testing.T) {
	c := NewViewCache()

	seq := c.Begin("channels")
	c.Fail("channels", seq)
	if c.State("channels") != ViewStale {
		t.Fatal("failed fetch should leave the view stale")
	}

	// A failure from a superseded fetch must not disturb the newer one.
	old := c.Begin("channels")
	newer := c.Begin("channels")
	c.Fail("channels", old)
	if c.State("channels") != ViewRefetching {
		t.Fatal("stale failure should not touch the in-flight fetch")
	}
	if !c.Complete("channels", newer, "ok") {
		t.Fatal("newest fetch should still install")
	}
}

func TestViewKeys(t *testing.T) {
	if KeyMessages("abc") != "messages:abc" {
		t.Fatalf("unexpected key %q", KeyMessages("abc"))
	}
	if KeyChannels == KeySearch {
		t.Fatal("view keys must be distinct")
	}
}
