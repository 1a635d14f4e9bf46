package detector

import "testing"

func TestRing_BoundedFIFO(t *testing.T) {
	r := NewRing(5)

	// Добавляем больше сэмплов чем емкость - остаются последние W
	for i := 0; i < 12; i++ {
		r.Append(Sample{X: float64(i), TsMS: int64(i * 100)})
	}

	if r.Len() != 5 {
		t.Fatalf("Expected len 5, got %d", r.Len())
	}

	got := r.Slice()
	for i, s := range got {
		want := float64(7 + i)
		if s.X != want {
			t.Errorf("Slice[%d]: expected X=%v, got %v", i, want, s.X)
		}
	}
}

func TestRing_SliceBeforeFull(t *testing.T) {
	r := NewRing(10)

	for i := 0; i < 3; i++ {
		r.Append(Sample{TsMS: int64(i)})
	}

	got := r.Slice()
	if len(got) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(got))
	}
	for i, s := range got {
		if s.TsMS != int64(i) {
			t.Errorf("Slice[%d]: expected ts=%d, got %d", i, i, s.TsMS)
		}
	}
}

func TestRing_Recent(t *testing.T) {
	r := NewRing(8)

	for i := 0; i < 6; i++ {
		r.Append(Sample{TsMS: int64(i)})
	}

	recent := r.Recent(4)
	if len(recent) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(recent))
	}
	if recent[0].TsMS != 2 || recent[3].TsMS != 5 {
		t.Errorf("Expected ts 2..5, got %d..%d", recent[0].TsMS, recent[3].TsMS)
	}

	// Запрос больше чем есть в буфере - возвращается все содержимое
	all := r.Recent(100)
	if len(all) != 6 {
		t.Errorf("Expected 6 samples, got %d", len(all))
	}

	if got := r.Recent(0); got != nil {
		t.Errorf("Expected nil for k=0, got %v", got)
	}
}

func TestRing_EmptyReads(t *testing.T) {
	r := NewRing(4)

	if r.Len() != 0 {
		t.Errorf("Expected empty ring, len=%d", r.Len())
	}
	if got := r.Slice(); len(got) != 0 {
		t.Errorf("Expected empty slice, got %d samples", len(got))
	}
	if got := r.Recent(3); len(got) != 0 {
		t.Errorf("Expected empty recent, got %d samples", len(got))
	}
}
