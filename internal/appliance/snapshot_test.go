package appliance

import (
	"fmt"
	"sync"
	"testing"
)

func TestSnapshot_ReplaceAndPins(t *testing.T) {
	snap := NewSnapshot()

	if got := snap.Pins(); len(got) != 0 {
		t.Errorf("new snapshot Pins() = %v, want empty", got)
	}

	snap.Replace(map[string]string{"d0": "on", "d1": "off"})

	got := snap.Pins()
	if len(got) != 2 || got["d0"] != "on" || got["d1"] != "off" {
		t.Errorf("Pins() = %v, want d0=on d1=off", got)
	}

	// Replace swaps the whole mapping, it does not merge.
	snap.Replace(map[string]string{"d2": "high"})
	got = snap.Pins()
	if len(got) != 1 || got["d2"] != "high" {
		t.Errorf("Pins() after replace = %v, want only d2=high", got)
	}
}

func TestSnapshot_PinDefault(t *testing.T) {
	snap := NewSnapshot()

	if got := snap.Pin("d3"); got != "" {
		t.Errorf("Pin(%q) on empty snapshot = %q, want empty", "d3", got)
	}

	snap.Replace(map[string]string{"d3": "on"})
	if got := snap.Pin("d3"); got != "on" {
		t.Errorf("Pin(%q) = %q, want %q", "d3", got, "on")
	}
}

func TestSnapshot_CopiesAreIsolated(t *testing.T) {
	snap := NewSnapshot()

	src := map[string]string{"d0": "on"}
	snap.Replace(src)
	src["d0"] = "mutated"

	if got := snap.Pin("d0"); got != "on" {
		t.Errorf("mutating the source map changed the snapshot: Pin(d0) = %q", got)
	}

	out := snap.Pins()
	out["d0"] = "mutated"
	if got := snap.Pin("d0"); got != "on" {
		t.Errorf("mutating the returned map changed the snapshot: Pin(d0) = %q", got)
	}
}

func TestSnapshot_ConcurrentAccess(t *testing.T) {
	snap := NewSnapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap.Replace(map[string]string{"d0": fmt.Sprintf("state-%d-%d", n, j)})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = snap.Pins()
				_ = snap.Pin("d0")
			}
		}()
	}
	wg.Wait()
}
