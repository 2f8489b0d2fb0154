package rangesplit

import (
	"testing"
)

func TestPartitionEvenSplit(t *testing.T) {
	base, err := Partition(Range{Lo: 0, Hi: 99, Step: 1}, 10)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}

	if len(base) != 10 {
		t.Fatalf("base ranges: want 10, got %d (%v)", len(base), base)
	}

	for i, r := range base {
		want := Range{Lo: int64(i * 10), Hi: int64(i*10 + 9), Step: 1}
		if r != want {
			t.Fatalf("range %d: want %v, got %v", i, want, r)
		}
	}
}

func TestPartitionStrided(t *testing.T) {
	r := Range{Lo: 0, Hi: 7, Step: 2}

	res, err := Step(r, 3)
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	if res.Base || len(res.Work) != 2 {
		t.Fatalf("first step: want 2 work items, got base=%v %v", res.Base, res.Work)
	}

	base, err := Partition(r, 3)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}

	if len(base) != 2 {
		t.Fatalf("base cases: want 2, got %v", base)
	}

	var got []int64
	for _, b := range base {
		got = append(got, b.Values()...)
	}

	want := []int64{0, 2, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("values: want %v, got %v", want, got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values: want %v, got %v", want, got)
		}
	}
}

func TestPartitionCoversExactly(t *testing.T) {
	tests := []struct {
		r      Range
		degree int
	}{
		{Range{0, 0, 1}, 2},
		{Range{0, 1000, 1}, 2},
		{Range{-50, 50, 3}, 4},
		{Range{5, 4, 1}, 3},
		{Range{0, 1, 5}, 2},
		{Range{1, 1 << 12, 7}, 16},
		{Range{0, 63, 1}, 64},
	}

	for _, tt := range tests {
		t.Run(tt.r.String(), func(t *testing.T) {
			base, err := Partition(tt.r, tt.degree)
			if err != nil {
				t.Fatalf("partition: %v", err)
			}

			want := tt.r.Values()

			var got []int64

			for _, b := range base {
				if b.Iters() > int64(tt.degree) {
					t.Fatalf("base case %v has %d iterations, degree %d", b, b.Iters(), tt.degree)
				}

				got = append(got, b.Values()...)
			}

			seen := make(map[int64]int, len(got))
			for _, v := range got {
				seen[v]++
			}

			if len(got) != len(want) {
				t.Fatalf("coverage: want %d values, got %d", len(want), len(got))
			}

			for _, v := range want {
				if seen[v] != 1 {
					t.Fatalf("value %d covered %d times", v, seen[v])
				}
			}
		})
	}
}

func TestSkip(t *testing.T) {
	tests := []struct {
		iters  int64
		degree int
		want   int64
	}{
		{100, 10, 10},
		{4, 3, 3},
		{1000, 2, 500},
		{11, 10, 10},
		{101, 10, 11},
	}

	for _, tt := range tests {
		if got := Skip(tt.iters, tt.degree); got != tt.want {
			t.Errorf("Skip(%d, %d): want %d, got %d", tt.iters, tt.degree, tt.want, got)
		}
	}
}

func TestStepRejectsBadInput(t *testing.T) {
	for _, degree := range []int{0, 1} {
		if _, err := Step(Range{0, 10, 1}, degree); err == nil {
			t.Fatalf("degree %d should be rejected", degree)
		}
	}

	if _, err := Step(Range{0, 10, 0}, 2); err == nil {
		t.Fatalf("step 0 should be rejected")
	}
}
