package coordinator

import (
	"maps"
	"testing"
)

func TestStatusCache_MergeRightBias(t *testing.T) {
	c := NewStatusCache(Status{"pwr": "0", "om": "1"})
	c.Merge(Status{"pwr": "1", "pm25": 7})

	want := Status{"pwr": "1", "om": "1", "pm25": 7}
	if got := c.Snapshot(); !maps.Equal(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestStatusCache_MergeIdempotent(t *testing.T) {
	delta := Status{"pwr": "1", "cl": true, "fltsts0": 120}

	once := NewStatusCache(Status{"mode": "A"})
	once.Merge(delta)

	twice := NewStatusCache(Status{"mode": "A"})
	twice.Merge(delta)
	twice.Merge(delta)

	if !maps.Equal(once.Snapshot(), twice.Snapshot()) {
		t.Errorf("merging twice = %v, merging once = %v", twice.Snapshot(), once.Snapshot())
	}
}

func TestStatusCache_KeysNeverShrink(t *testing.T) {
	c := NewStatusCache(nil)
	deltas := []Status{
		{"pwr": "1", "om": "2"},
		{"om": "3"},
		{},
		{"pm25": 4, "iaql": 1},
		{"pwr": "0"},
	}

	prev := 0
	for i, d := range deltas {
		c.Merge(d)
		if n := c.Len(); n < prev {
			t.Fatalf("after delta %d key count = %d, was %d", i, n, prev)
		}
		prev = c.Len()
	}
	if prev != 4 {
		t.Errorf("Len() = %d, want 4", prev)
	}
}

func TestStatusCache_StoresUnknownValues(t *testing.T) {
	c := NewStatusCache(nil)
	nested := map[string]any{"fw": "1.2.3"}
	c.Merge(Status{"D01-07": nested, "rssi": -61.5})

	v, ok := c.Get("D01-07")
	if !ok {
		t.Fatal("Get(D01-07) not found")
	}
	if got := v.(map[string]any)["fw"]; got != "1.2.3" {
		t.Errorf("nested fw = %v, want 1.2.3", got)
	}
}

func TestStatusCache_SnapshotIsCopy(t *testing.T) {
	c := NewStatusCache(Status{"pwr": "1"})
	snap := c.Snapshot()
	snap["pwr"] = "0"
	snap["extra"] = true

	if v, _ := c.Get("pwr"); v != "1" {
		t.Errorf("cache pwr = %v after mutating snapshot, want 1", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestStatusCache_InitialIsCopied(t *testing.T) {
	initial := Status{"pwr": "0"}
	c := NewStatusCache(initial)
	initial["pwr"] = "1"

	if v, _ := c.Get("pwr"); v != "0" {
		t.Errorf("cache pwr = %v, want 0", v)
	}
}

func TestStatusCache_ConcurrentReadersSeeWholeDeltas(t *testing.T) {
	c := NewStatusCache(Status{"a": 0, "b": 0})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 1; i <= 500; i++ {
			c.Merge(Status{"a": i, "b": i})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		snap := c.Snapshot()
		if snap["a"] != snap["b"] {
			t.Fatalf("torn snapshot: a=%v b=%v", snap["a"], snap["b"])
		}
	}
}
