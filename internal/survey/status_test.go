package survey

import (
	"sync"
	"testing"
)

func TestStatusStoreSetGet(t *testing.T) {
	s := NewStatusStore()

	s.Set("vid-1", Status{Status: StateQueued, Progress: 0, Message: "Video uploaded, waiting to process..."})

	st, ok := s.Get("vid-1")
	if !ok {
		t.Fatal("expected status for vid-1")
	}
	if st.Status != StateQueued || st.Progress != 0 {
		t.Errorf("status = %+v", st)
	}

	if _, ok := s.Get("unknown"); ok {
		t.Error("expected no status for unknown id")
	}
}

func TestStatusStoreSetReplacesWholeValue(t *testing.T) {
	s := NewStatusStore()

	s.Set("vid-1", Status{Status: StateProcessing, Progress: 40, Message: "Starting processing..."})
	s.Set("vid-1", Status{Status: StateError, Progress: 0, Message: "Error: Could not open video"})

	st, _ := s.Get("vid-1")
	if st.Status != StateError {
		t.Errorf("status = %q, want error", st.Status)
	}
	if st.Progress != 0 {
		t.Errorf("progress = %d, want 0 after error reset", st.Progress)
	}
}

func TestStatusStoreIDsSorted(t *testing.T) {
	s := NewStatusStore()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		s.Set(id, Status{Status: StateQueued})
	}

	ids := s.IDs()
	want := []string{"alpha", "bravo", "charlie"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() length = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestStatusStoreConcurrentAccess(t *testing.T) {
	s := NewStatusStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j <= 100; j += 5 {
				s.Set(id, Status{Status: StateProcessing, Progress: j, Message: "Starting processing..."})
				s.Get(id)
				s.IDs()
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 8 {
		t.Errorf("Len() = %d, want 8", s.Len())
	}
}
