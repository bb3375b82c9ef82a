package battery

import "testing"

func sourceEqual(a, b Source) bool {
	if (a.Descriptor == nil) != (b.Descriptor == nil) {
		return false
	}
	if a.Descriptor != nil && *a.Descriptor != *b.Descriptor {
		return false
	}
	if (a.Level == nil) != (b.Level == nil) {
		return false
	}
	if a.Level != nil && *a.Level != *b.Level {
		return false
	}
	return true
}

func sourcesEqual(a, b []Source) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sourceEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func TestMergeReplacesLevelForCentral(t *testing.T) {
	existing := []Source{
		{Descriptor: nil, Level: Lvl(90)},
		{Descriptor: Desc("peripheral"), Level: nil},
	}
	reading := []Source{{Descriptor: nil, Level: Lvl(85)}}

	got := Merge(existing, reading)
	want := []Source{
		{Descriptor: nil, Level: Lvl(85)},
		{Descriptor: Desc("peripheral"), Level: nil},
	}
	if !sourcesEqual(got, want) {
		t.Errorf("merge result = %+v, want %+v", got, want)
	}
}

func TestMergeNilLevelCarriesForward(t *testing.T) {
	existing := []Source{{Descriptor: Desc("peripheral"), Level: Lvl(40)}}
	reading := []Source{{Descriptor: Desc("peripheral"), Level: nil}}

	got := Merge(existing, reading)
	if len(got) != 1 || got[0].Level == nil || *got[0].Level != 40 {
		t.Errorf("peripheral level = %+v, want 40 carried forward", got[0].Level)
	}
}

func TestMergeAppendsDistinctDescriptors(t *testing.T) {
	var state []Source
	state = Merge(state, []Source{{Descriptor: Desc("left"), Level: Lvl(80)}})
	state = Merge(state, []Source{{Descriptor: Desc("right"), Level: Lvl(75)}})

	want := []Source{
		{Descriptor: Desc("left"), Level: Lvl(80)},
		{Descriptor: Desc("right"), Level: Lvl(75)},
	}
	if !sourcesEqual(state, want) {
		t.Errorf("sources = %+v, want both descriptors present", state)
	}
}

func TestMergeIdempotent(t *testing.T) {
	existing := []Source{
		{Descriptor: nil, Level: Lvl(90)},
		{Descriptor: Desc("peripheral"), Level: Lvl(40)},
	}
	reading := []Source{
		{Descriptor: nil, Level: nil},
		{Descriptor: Desc("peripheral"), Level: Lvl(38)},
		{Descriptor: Desc("dongle"), Level: Lvl(100)},
	}

	once := Merge(existing, reading)
	twice := Merge(once, reading)
	if !sourcesEqual(once, twice) {
		t.Errorf("second merge changed result: once=%+v twice=%+v", once, twice)
	}
}

func TestMergeNeverRegressesKnownLevel(t *testing.T) {
	existing := []Source{{Descriptor: nil, Level: Lvl(55)}}
	reading := []Source{{Descriptor: nil, Level: nil}}

	got := Merge(existing, reading)
	if got[0].Level == nil {
		t.Fatal("known level regressed to nil")
	}
	if *got[0].Level != 55 {
		t.Errorf("level = %d, want 55", *got[0].Level)
	}
}

func TestMergeUntouchedEntriesPreserved(t *testing.T) {
	existing := []Source{
		{Descriptor: Desc("left"), Level: Lvl(70)},
		{Descriptor: Desc("right"), Level: Lvl(60)},
	}
	reading := []Source{{Descriptor: Desc("left"), Level: Lvl(65)}}

	got := Merge(existing, reading)
	want := []Source{
		{Descriptor: Desc("left"), Level: Lvl(65)},
		{Descriptor: Desc("right"), Level: Lvl(60)},
	}
	if !sourcesEqual(got, want) {
		t.Errorf("merge result = %+v, want right untouched", got)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := []Source{{Descriptor: nil, Level: Lvl(90)}}
	reading := []Source{{Descriptor: nil, Level: Lvl(10)}}

	_ = Merge(existing, reading)
	if *existing[0].Level != 90 {
		t.Errorf("existing mutated: level = %d", *existing[0].Level)
	}
	if *reading[0].Level != 10 {
		t.Errorf("reading mutated: level = %d", *reading[0].Level)
	}
}

func TestCrossedLow(t *testing.T) {
	tests := []struct {
		name string
		prev *int
		next *int
		want bool
	}{
		{"above to below", Lvl(25), Lvl(18), true},
		{"sustained below", Lvl(18), Lvl(18), false},
		{"below to lower", Lvl(15), Lvl(5), false},
		{"above to threshold", Lvl(21), Lvl(20), true},
		{"above stays above", Lvl(80), Lvl(75), false},
		{"recovered then low again", Lvl(40), Lvl(19), true},
		{"unknown to low", nil, Lvl(12), true},
		{"unknown to fine", nil, Lvl(90), false},
		{"next unknown", Lvl(25), nil, false},
		{"both unknown", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrossedLow(tt.prev, tt.next); got != tt.want {
				t.Errorf("CrossedLow(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestSourceHelpers(t *testing.T) {
	s := Source{Descriptor: Desc("left"), Level: Lvl(20)}
	if s.DescriptorKey() != "left" {
		t.Errorf("DescriptorKey = %q, want left", s.DescriptorKey())
	}
	if !s.IsLow() {
		t.Error("IsLow() = false at threshold, want true")
	}
	central := Source{Level: Lvl(21)}
	if central.DescriptorKey() != "" {
		t.Errorf("central DescriptorKey = %q, want empty", central.DescriptorKey())
	}
	if central.IsLow() {
		t.Error("IsLow() = true above threshold")
	}

	clone := s.Clone()
	*clone.Level = 99
	*clone.Descriptor = "mutated"
	if *s.Level != 20 || *s.Descriptor != "left" {
		t.Error("Clone shares pointers with original")
	}
}
