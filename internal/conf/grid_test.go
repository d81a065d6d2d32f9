package conf

import "testing"

func TestGridSetDefaults(t *testing.T) {
	g := &Grid{}
	g.setDefaults()

	if g.NextAttemptMs != 300 {
		t.Errorf("NextAttemptMs = %d, want 300", g.NextAttemptMs)
	}
	if g.H3DialTimeoutMs != 5000 {
		t.Errorf("H3DialTimeoutMs = %d, want 5000", g.H3DialTimeoutMs)
	}
	if g.H2DialTimeoutMs != 5000 {
		t.Errorf("H2DialTimeoutMs = %d, want 5000", g.H2DialTimeoutMs)
	}
}

func TestGridSetDefaultsPreservesExplicitValues(t *testing.T) {
	g := &Grid{NextAttemptMs: 100, H3DialTimeoutMs: 1000, H2DialTimeoutMs: 2000}
	g.setDefaults()

	if g.NextAttemptMs != 100 {
		t.Errorf("NextAttemptMs = %d, want 100", g.NextAttemptMs)
	}
	if g.H3DialTimeoutMs != 1000 {
		t.Errorf("H3DialTimeoutMs = %d, want 1000", g.H3DialTimeoutMs)
	}
	if g.H2DialTimeoutMs != 2000 {
		t.Errorf("H2DialTimeoutMs = %d, want 2000", g.H2DialTimeoutMs)
	}
}

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name    string
		g       Grid
		wantErr bool
	}{
		{"valid", Grid{NextAttemptMs: 300, H3DialTimeoutMs: 5000, H2DialTimeoutMs: 5000}, false},
		{"negative next attempt", Grid{NextAttemptMs: -1, H3DialTimeoutMs: 5000, H2DialTimeoutMs: 5000}, true},
		{"next attempt too large", Grid{NextAttemptMs: 70_000, H3DialTimeoutMs: 5000, H2DialTimeoutMs: 5000}, true},
		{"h3 timeout too small", Grid{NextAttemptMs: 300, H3DialTimeoutMs: 10, H2DialTimeoutMs: 5000}, true},
		{"h2 timeout too large", Grid{NextAttemptMs: 300, H3DialTimeoutMs: 5000, H2DialTimeoutMs: 200_000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.g.validate()
			if tt.wantErr && len(errs) == 0 {
				t.Errorf("validate() = no errors, want at least one")
			}
			if !tt.wantErr && len(errs) != 0 {
				t.Errorf("validate() = %v, want no errors", errs)
			}
		})
	}
}
