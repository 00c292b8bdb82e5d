package sampler

import "testing"

func TestShouldSampleEveryNth(t *testing.T) {
	s := New(4, 16)
	var hits int
	for i := 0; i < 12; i++ {
		if s.ShouldSample() {
			hits++
		}
	}
	if hits != 3 {
		t.Fatalf("hits = %d, want 3 (every 4th of 12 calls)", hits)
	}
}

func TestRecordAndEstimateRunningAverage(t *testing.T) {
	s := New(1, 16)
	s.Record(42, 100)
	s.Record(42, 300)

	avg, ok := s.Estimate(42)
	if !ok {
		t.Fatalf("Estimate() ok = false, want true")
	}
	if avg != 200 {
		t.Fatalf("Estimate() = %d, want 200", avg)
	}
}

func TestEstimateFallsBackWhenUnsampled(t *testing.T) {
	s := New(1, 16)
	if _, ok := s.Estimate(999); ok {
		t.Fatalf("Estimate() on unknown trace id ok = true, want false")
	}
}

func TestTableIsBoundedByCapacity(t *testing.T) {
	s := New(1, 4)
	for i := uint64(0); i < 10; i++ {
		s.Record(i, 50)
	}
	if s.Len() > 4 {
		t.Fatalf("Len() = %d, want <= 4 (LRU-bounded)", s.Len())
	}
}
