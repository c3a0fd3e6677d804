package sandbox

import (
	"testing"
	"time"
)

func rec(name, id string) *Record {
	return &Record{
		Name:      name,
		Handle:    &fakeHandle{id: id},
		ID:        id,
		BaseURL:   "https://8000-" + id + ".e2b.app",
		CreatedAt: time.Now(),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := NewStore()

	if displaced := s.Put(rec("web", "sbx-1")); displaced != nil {
		t.Errorf("expected no displaced record, got %v", displaced.ID)
	}

	got, ok := s.Get("web")
	if !ok {
		t.Fatal("expected record for \"web\"")
	}
	if got.ID != "sbx-1" {
		t.Errorf("expected ID sbx-1, got %s", got.ID)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("expected no record for \"missing\"")
	}
}

func TestStore_DuplicateNameLastWriteWins(t *testing.T) {
	s := NewStore()

	s.Put(rec("web", "sbx-1"))
	displaced := s.Put(rec("web", "sbx-2"))

	if displaced == nil {
		t.Fatal("expected displaced record")
	}
	if displaced.ID != "sbx-1" {
		t.Errorf("expected displaced ID sbx-1, got %s", displaced.ID)
	}

	got, _ := s.Get("web")
	if got.ID != "sbx-2" {
		t.Errorf("expected current ID sbx-2, got %s", got.ID)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record, got %d", s.Len())
	}
}

func TestStore_ListInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Put(rec("c", "sbx-1"))
	s.Put(rec("a", "sbx-2"))
	s.Put(rec("b", "sbx-3"))

	// Replacing keeps the original position.
	s.Put(rec("a", "sbx-4"))

	records := s.List()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	wantNames := []string{"c", "a", "b"}
	wantIDs := []string{"sbx-1", "sbx-4", "sbx-3"}
	for i, r := range records {
		if r.Name != wantNames[i] {
			t.Errorf("position %d: expected name %s, got %s", i, wantNames[i], r.Name)
		}
		if r.ID != wantIDs[i] {
			t.Errorf("position %d: expected ID %s, got %s", i, wantIDs[i], r.ID)
		}
	}
}

func TestStore_Drain(t *testing.T) {
	s := NewStore()
	s.Put(rec("a", "sbx-1"))
	s.Put(rec("b", "sbx-2"))

	drained := s.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained records, got %d", len(drained))
	}
	if drained[0].Name != "a" || drained[1].Name != "b" {
		t.Errorf("drain order wrong: %s, %s", drained[0].Name, drained[1].Name)
	}

	if s.Len() != 0 {
		t.Errorf("expected empty store after drain, got %d", s.Len())
	}
	if again := s.Drain(); len(again) != 0 {
		t.Errorf("second drain should be empty, got %d", len(again))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			s.Put(rec("a", "sbx-1"))
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		s.Get("a")
		s.List()
	}
	<-done
}
