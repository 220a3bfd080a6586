package dialer

import "testing"

func TestHasCapacityBoundary(t *testing.T) {
	cases := []struct {
		active, max int
		want        bool
	}{
		{0, 1, true},
		{1, 2, true},
		{2, 2, false},
		{3, 2, false},
		{0, 0, false},
	}

	for _, tc := range cases {
		if got := HasCapacity(tc.active, tc.max); got != tc.want {
			t.Errorf("HasCapacity(%d, %d) = %v, want %v", tc.active, tc.max, got, tc.want)
		}
	}
}

func TestParseCapacityMode(t *testing.T) {
	if mode, err := ParseCapacityMode(""); err != nil || mode != CapacityModeLocal {
		t.Errorf("empty mode should default to local, got %q err %v", mode, err)
	}
	if mode, err := ParseCapacityMode("resample"); err != nil || mode != CapacityModeResample {
		t.Errorf("resample mode: got %q err %v", mode, err)
	}
	if _, err := ParseCapacityMode("adaptive"); err == nil {
		t.Error("unknown mode must be rejected")
	}
}

func TestGovernorLocalModeIncrementsWithoutResampling(t *testing.T) {
	samples := 0
	g := NewGovernor(CapacityModeLocal, 2, 1, func() (int, error) {
		samples++
		return 0, nil
	})

	admit, err := g.Admit()
	if err != nil || !admit {
		t.Fatalf("first admit: %v %v", admit, err)
	}
	g.NoteOriginated()

	admit, err = g.Admit()
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if admit {
		t.Fatal("local counter reached the cap, admit must be false")
	}
	if samples != 0 {
		t.Fatalf("local mode must never resample, sampled %d times", samples)
	}
}

func TestGovernorResampleModeQueriesEveryAdmit(t *testing.T) {
	counts := []int{4, 1}
	idx := 0
	g := NewGovernor(CapacityModeResample, 3, 0, func() (int, error) {
		n := counts[idx]
		idx++
		return n, nil
	})

	admit, err := g.Admit()
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if admit {
		t.Fatal("4 active with cap 3 must not admit")
	}

	admit, err = g.Admit()
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !admit {
		t.Fatal("1 active with cap 3 must admit")
	}
	if idx != 2 {
		t.Fatalf("expected 2 samples, got %d", idx)
	}
}
