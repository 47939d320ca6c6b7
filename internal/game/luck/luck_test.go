package luck

import "testing"

func TestFloat_Deterministic(t *testing.T) {
	keys := []string{"0,0", "369894,-1220627", "1,-1,initialValue", ""}
	for _, k := range keys {
		a := Float(k)
		b := Float(k)
		if a != b {
			t.Fatalf("Float(%q) not stable: %v vs %v", k, a, b)
		}
	}
}

func TestFloat_Range(t *testing.T) {
	for i := -500; i < 500; i++ {
		v := Float(Key(i, -i))
		if v < 0 || v >= 1 {
			t.Fatalf("Float(%q) = %v out of [0,1)", Key(i, -i), v)
		}
	}
}

func TestFloat_DistinctKeysDiffer(t *testing.T) {
	if Float("1,2") == Float("2,1") {
		t.Fatalf("swapped coordinates should not collide")
	}
	if Float("1,2") == Float("1,2,initialValue") {
		t.Fatalf("tagged key should not collide with bare key")
	}
}

func TestFloat_RoughlyUniform(t *testing.T) {
	// Spawn decisions compare against small thresholds, so the low end of
	// the distribution matters. Over 10k cell keys, a 0.1 threshold should
	// select within a loose band around 1000.
	hits := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if Float(Key(i/100, i%100)) < 0.1 {
			hits++
		}
	}
	if hits < 800 || hits > 1200 {
		t.Fatalf("threshold 0.1 selected %d of %d keys", hits, n)
	}
}

func TestKey(t *testing.T) {
	if got := Key(369894, -1220627); got != "369894,-1220627" {
		t.Fatalf("Key = %q", got)
	}
	if got := Key(3, 4, "initialValue"); got != "3,4,initialValue" {
		t.Fatalf("Key = %q", got)
	}
}
