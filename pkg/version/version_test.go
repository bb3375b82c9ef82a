package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		major   uint16
		minor   uint16
		wantErr bool
	}{
		{"1.0", 1, 0, false},
		{"2.15", 2, 15, false},
		{"0.1", 0, 1, false},
		{"1", 0, 0, true},
		{"1.2.3", 0, 0, true},
		{"a.b", 0, 0, true},
		{"1.", 0, 0, true},
		{".0", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		v, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if v.Major != tt.major || v.Minor != tt.minor {
			t.Errorf("Parse(%q) = %d.%d, want %d.%d", tt.in, v.Major, v.Minor, tt.major, tt.minor)
		}
	}
}

func TestCurrentParses(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Current %q does not parse: %v", Current, err)
	}
	if v.String() != Current {
		t.Errorf("round trip: %q != %q", v.String(), Current)
	}
}

func TestCompatible(t *testing.T) {
	v10 := MustParse("1.0")
	v15 := MustParse("1.5")
	v20 := MustParse("2.0")

	if !v10.Compatible(v15) {
		t.Error("1.0 should be compatible with 1.5")
	}
	if v10.Compatible(v20) {
		t.Error("1.0 should not be compatible with 2.0")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse("bogus")
}
