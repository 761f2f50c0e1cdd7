package catalog

import (
	"testing"
	"time"

	"storeprice/models"
)

func sampleItems() []models.Item {
	return []models.Item{
		{ID: "iron-chest", Name: "Iron Chest", Category: models.CategoryResources, Prices: []models.MarketPrice{{Market: "M1", Price: 1}}},
		{ID: "tower", Name: "Tower", Category: models.CategoryDecor, Prices: []models.MarketPrice{{Market: "M2", Price: 2}}},
	}
}

func TestStoreReplaceAndLookup(t *testing.T) {
	s := NewStore()
	if s.State() != models.LoadStateLoading {
		t.Fatalf("expected loading, got %s", s.State())
	}

	s.Replace(sampleItems())
	if s.Version() != 1 || s.Len() != 2 {
		t.Fatalf("unexpected version/len: %d/%d", s.Version(), s.Len())
	}

	it, ok := s.Lookup("tower")
	if !ok || it.Name != "Tower" {
		t.Fatalf("lookup failed: %+v %v", it, ok)
	}
	it.Prices[0].Price = 99
	again, _ := s.Lookup("tower")
	if again.Prices[0].Price != 2 {
		t.Fatalf("lookup result shares price slice with the store")
	}

	if _, ok := s.Lookup("missing"); ok {
		t.Fatalf("unexpected hit for missing id")
	}
}

func TestStoreStateTransitions(t *testing.T) {
	s := NewStore()
	if !s.MarkReady() {
		t.Fatalf("first MarkReady should change state")
	}
	if s.MarkReady() {
		t.Fatalf("second MarkReady should be a no-op")
	}
	if s.State() != models.LoadStateReadyEmpty {
		t.Fatalf("expected ready-empty, got %s", s.State())
	}
	s.Replace(sampleItems())
	if s.State() != models.LoadStateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Replace(sampleItems())
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change notification")
	}
}

func TestSnapshotIsStableAcrossReplace(t *testing.T) {
	s := NewStore()
	s.Replace(sampleItems())
	snap := s.Snapshot()

	s.Replace(sampleItems()[:1])
	if len(snap.Items) != 2 || snap.Version != 1 {
		t.Fatalf("snapshot changed after replace: %+v", snap)
	}
}

func TestStorePublishReadyIsAtomic(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Publish(sampleItems(), true)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change notification")
	}
	snap := s.Snapshot()
	if snap.State != models.LoadStateReady || len(snap.Items) != 2 {
		t.Fatalf("unexpected snapshot: state=%s items=%d", snap.State, len(snap.Items))
	}
	select {
	case <-ch:
		t.Fatalf("publish should notify once")
	case <-time.After(30 * time.Millisecond):
	}
	if s.MarkReady() {
		t.Fatalf("store already ready after publish")
	}
}

func TestStoreConcurrentReadersNeverSeeLoadingWithItems(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})
	bad := make(chan models.LoadState, 1)
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			snap := s.Snapshot()
			if len(snap.Items) > 0 && snap.State == models.LoadStateLoading {
				bad <- snap.State
				return
			}
		}
	}()
	s.Publish(sampleItems(), true)
	<-done
	select {
	case st := <-bad:
		t.Fatalf("observed items while state was %s", st)
	default:
	}
}
