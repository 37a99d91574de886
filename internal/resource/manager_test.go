package resource

import (
	"testing"
	"time"
)

func TestInsertFindRemove(t *testing.T) {
	m := New(0)
	h := m.Insert("34020000001110000001", "session-a")
	if h.Value().(string) != "session-a" {
		t.Fatalf("unexpected value %v", h.Value())
	}

	got, ok := m.Find("34020000001110000001")
	if !ok || got.Value().(string) != "session-a" {
		t.Fatalf("expected to find inserted session")
	}

	m.Remove("34020000001110000001")
	if _, ok := m.Find("34020000001110000001"); ok {
		t.Fatal("expected session to be removed")
	}
}

func TestBindSSRCRoutesLookup(t *testing.T) {
	m := New(0)
	m.Insert("34020000001110000001", "session-a")

	if ok := m.BindSSRC("34020000001110000001", 0x00000001); !ok {
		t.Fatal("expected bind to succeed for a known device id")
	}

	h, ok := m.FindBySSRC(0x00000001)
	if !ok || h.Value().(string) != "session-a" {
		t.Fatalf("expected ssrc lookup to resolve the bound session")
	}

	if ok := m.BindSSRC("no-such-device", 2); ok {
		t.Fatal("expected bind to fail for an unknown device id")
	}
}

func TestRemoveClearsSSRCIndex(t *testing.T) {
	m := New(0)
	m.Insert("dev", "s")
	m.BindSSRC("dev", 7)
	m.Remove("dev")

	if _, ok := m.FindBySSRC(7); ok {
		t.Fatal("expected ssrc index to be cleared on removal")
	}
}

func TestHandleReleaseFiresOnlyAtZero(t *testing.T) {
	fired := 0
	h := newHandle("id", "v", func() { fired++ })
	h.Retain()
	h.Release()
	if fired != 0 {
		t.Fatalf("expected no disposal with an outstanding reference, fired=%d", fired)
	}
	h.Release()
	h.Release() // extra release must not double-fire
	if fired != 1 {
		t.Fatalf("expected exactly one disposal, fired=%d", fired)
	}
}

func TestGetOrCreateOnlyBuildsOnMiss(t *testing.T) {
	m := New(0)
	builds := 0
	build := func() interface{} {
		builds++
		return "built"
	}

	h1, created1 := m.GetOrCreate("dev", build)
	if !created1 || h1.Value().(string) != "built" {
		t.Fatalf("expected first call to create, got created=%v value=%v", created1, h1.Value())
	}

	h2, created2 := m.GetOrCreate("dev", build)
	if created2 || h2 != h1 {
		t.Fatalf("expected second call to reuse the existing handle")
	}
	if builds != 1 {
		t.Fatalf("build() called %d times, want 1", builds)
	}
}

func TestIdleEvictionRemovesStaleSession(t *testing.T) {
	m := New(30 * time.Millisecond)
	m.Insert("dev", "s")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Find("dev"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected idle session to be evicted")
}
