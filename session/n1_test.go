package session

import "testing"

func TestN1FiresExactlyOnceAtThreshold(t *testing.T) {
	d := NewN1Detector(3)
	for i := 0; i < 2; i++ {
		fire, _, _ := d.Record("users", "posts", "site")
		if fire {
			t.Fatalf("fired below threshold at call %d", i+1)
		}
	}
	fire, count, sites := d.Record("users", "posts", "site")
	if !fire {
		t.Fatal("must fire when the count reaches the threshold")
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if len(sites) != 3 {
		t.Fatalf("expected the first call sites, got %v", sites)
	}

	// De-dup: the same key never fires twice.
	fire, _, _ = d.Record("users", "posts", "site")
	if fire {
		t.Fatal("the same (table, relationship) key must be de-duped")
	}
}

func TestN1KeysAreIndependent(t *testing.T) {
	d := NewN1Detector(2)
	d.Record("users", "posts", "a")
	fire, _, _ := d.Record("users", "comments", "b")
	if fire {
		t.Fatal("a different relationship must keep its own count")
	}
}

func TestN1CapsRecordedCallSites(t *testing.T) {
	d := NewN1Detector(10)
	var sites []string
	for i := 0; i < 10; i++ {
		_, _, s := d.Record("users", "posts", "site")
		if s != nil {
			sites = s
		}
	}
	if len(sites) > 5 {
		t.Fatalf("call sites must be capped, got %d", len(sites))
	}
}

func TestN1DisabledThreshold(t *testing.T) {
	d := NewN1Detector(0)
	for i := 0; i < 100; i++ {
		if fire, _, _ := d.Record("users", "posts", "x"); fire {
			t.Fatal("a non-positive threshold disables detection")
		}
	}
}

func TestN1Reset(t *testing.T) {
	d := NewN1Detector(2)
	d.Record("users", "posts", "x")
	d.Reset()
	if fire, _, _ := d.Record("users", "posts", "x"); fire {
		t.Fatal("Reset must clear counters")
	}
}
