package keypool

import (
	"errors"
	"slices"
	"testing"
)

func ranges(pairs ...Handle) []Range {
	out := make([]Range, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Range{Start: pairs[i], End: pairs[i+1]})
	}
	return out
}

func TestRangeSet_NewIsFullDomain(t *testing.T) {
	s := NewRangeSet(9)
	if got := s.Ranges(); !slices.Equal(got, ranges(0, 9)) {
		t.Fatalf("expected [0,9], got %v", got)
	}
	if !s.IsFree(0) || !s.IsFree(9) {
		t.Fatal("expected domain bounds to be free")
	}
	if s.IsFree(10) || s.IsFree(-1) {
		t.Fatal("expected handles outside the domain not to be free")
	}
}

func TestRangeSet_NegativeCeilingIsEmpty(t *testing.T) {
	s := NewRangeSet(-1)
	if s.Len() != 0 {
		t.Fatalf("expected no ranges, got %v", s.Ranges())
	}
	if _, err := s.TakeLowest(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestRangeSet_TakeLowest(t *testing.T) {
	s := NewRangeSet(2)
	for want := Handle(0); want <= 2; want++ {
		got, err := s.TakeLowest()
		if err != nil {
			t.Fatalf("TakeLowest: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("expected drained set, got %v", s.Ranges())
	}
	if _, err := s.TakeLowest(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestRangeSet_LowestFree(t *testing.T) {
	s := NewRangeSet(Unbounded)
	h, ok := s.LowestFree()
	if !ok || h != 0 {
		t.Fatalf("expected 0, got %d (ok=%v)", h, ok)
	}
	if _, err := s.TakeLowest(); err != nil {
		t.Fatal(err)
	}
	h, _ = s.LowestFree()
	if h != 1 {
		t.Fatalf("expected 1 after one take, got %d", h)
	}
	if s.Len() != 1 {
		t.Fatalf("peek must not change ranges, got %v", s.Ranges())
	}
}

func TestRangeSet_GiveBackMerges(t *testing.T) {
	tests := []struct {
		name  string
		taken []Handle // handles reserved out of [0,9] before giving back
		back  []Handle
		want  []Range
	}{
		{
			name:  "singleton between gaps",
			taken: []Handle{0, 1, 2, 3, 4},
			back:  []Handle{2},
			want:  ranges(2, 2, 5, 9),
		},
		{
			name:  "join previous",
			taken: []Handle{0, 1, 2, 3, 4},
			back:  []Handle{1, 2},
			want:  ranges(1, 2, 5, 9),
		},
		{
			name:  "join next",
			taken: []Handle{0, 1, 2, 3, 4},
			back:  []Handle{4},
			want:  ranges(4, 9),
		},
		{
			name:  "join both sides",
			taken: []Handle{0, 1, 2, 3, 4},
			back:  []Handle{2, 4, 3},
			want:  ranges(2, 9),
		},
		{
			name:  "lowest handle before first range",
			taken: []Handle{0, 1, 2},
			back:  []Handle{0},
			want:  ranges(0, 0, 3, 9),
		},
		{
			name:  "everything back",
			taken: []Handle{0, 1, 2, 3},
			back:  []Handle{3, 0, 2, 1},
			want:  ranges(0, 9),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRangeSet(9)
			for _, h := range tt.taken {
				if err := s.Reserve(h); err != nil {
					t.Fatalf("Reserve(%d): %v", h, err)
				}
			}
			for _, h := range tt.back {
				if err := s.GiveBack(h); err != nil {
					t.Fatalf("GiveBack(%d): %v", h, err)
				}
			}
			if got := s.Ranges(); !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRangeSet_GiveBackRejectsFreeHandle(t *testing.T) {
	s := NewRangeSet(9)
	for i := 0; i < 3; i++ {
		if _, err := s.TakeLowest(); err != nil {
			t.Fatal(err)
		}
	}
	before := s.Ranges()
	for _, h := range []Handle{3, 9, -1, 10} {
		err := s.GiveBack(h)
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("GiveBack(%d): expected ErrInvalidKey, got %v", h, err)
		}
		var kerr *KeyError
		if !errors.As(err, &kerr) || kerr.Handle != h {
			t.Fatalf("GiveBack(%d): expected KeyError naming the handle, got %v", h, err)
		}
	}
	if got := s.Ranges(); !slices.Equal(got, before) {
		t.Fatalf("failed GiveBack changed ranges: %v -> %v", before, got)
	}
}

func TestRangeSet_ReserveSplits(t *testing.T) {
	s := NewRangeSet(9)
	if err := s.Reserve(5); err != nil {
		t.Fatal(err)
	}
	if got := s.Ranges(); !slices.Equal(got, ranges(0, 4, 6, 9)) {
		t.Fatalf("expected split around 5, got %v", got)
	}
	if err := s.Reserve(5); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey reserving a taken handle, got %v", err)
	}
	if err := s.ReserveRange(0, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.ReserveRange(6, 7); err != nil {
		t.Fatal(err)
	}
	if got := s.Ranges(); !slices.Equal(got, ranges(8, 9)) {
		t.Fatalf("expected [8,9], got %v", got)
	}
	if err := s.ReserveRange(7, 9); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for partly taken range, got %v", err)
	}
	if err := s.ReserveRange(9, 8); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for inverted range, got %v", err)
	}
}

func TestRangeSet_IsFreeBinarySearch(t *testing.T) {
	s := NewRangeSet(99)
	// take every odd handle so the set holds 50 singleton ranges
	for h := Handle(1); h < 100; h += 2 {
		if err := s.Reserve(h); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 50 {
		t.Fatalf("expected 50 ranges, got %d", s.Len())
	}
	for h := Handle(0); h < 100; h++ {
		if got, want := s.IsFree(h), h%2 == 0; got != want {
			t.Fatalf("IsFree(%d) = %v, want %v", h, got, want)
		}
	}
}

func TestRangeSet_UnboundedTop(t *testing.T) {
	s := NewRangeSet(Unbounded)
	if err := s.Reserve(Unbounded); err != nil {
		t.Fatal(err)
	}
	if s.IsFree(Unbounded) {
		t.Fatal("expected top handle to be taken")
	}
	if err := s.GiveBack(Unbounded); err != nil {
		t.Fatal(err)
	}
	if got := s.Ranges(); !slices.Equal(got, ranges(0, Unbounded)) {
		t.Fatalf("expected full domain, got %v", got)
	}
}
