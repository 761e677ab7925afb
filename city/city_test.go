package city

import "testing"

func TestCanonicalize(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "canonical name passes through",
			raw:  "newyorkcity",
			want: "newyorkcity",
		},
		{
			name: "abbreviation",
			raw:  "NYC",
			want: "newyorkcity",
		},
		{
			name: "spaced full name",
			raw:  "New York City",
			want: "newyorkcity",
		},
		{
			name: "state qualified with punctuation",
			raw:  "New York, NY",
			want: "newyorkcity",
		},
		{
			name: "bay area abbreviation",
			raw:  "S.F.",
			want: "sanfrancisco",
		},
		{
			name: "unknown city canonicalizes to itself",
			raw:  "Lexington",
			want: "lexington",
		},
		{
			name: "unknown city with punctuation",
			raw:  "Winston-Salem",
			want: "winstonsalem",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
		{
			name: "punctuation only",
			raw:  "---",
			want: "",
		},
		{
			name: "unicode stripped",
			raw:  "Zürich",
			want: "zrich",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Canonicalize(tt.raw); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestCanonicalizeIdempotent verifies canonicalize(canonicalize(s)) == canonicalize(s).
func TestCanonicalizeIdempotent(t *testing.T) {
	c := New()

	inputs := []string{"NYC", "New York City", "S.F.", "Lexington", "philly", "", "Washington D.C.", "champaign-urbana"}
	for _, s := range inputs {
		once := c.Canonicalize(s)
		twice := c.Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: first %q, second %q", s, once, twice)
		}
	}
}

// TestAliasSymmetry verifies any two aliases of the same city canonicalize equally.
func TestAliasSymmetry(t *testing.T) {
	c := New()

	pairs := [][2]string{
		{"NYC", "New York"},
		{"LA", "Los Angeles"},
		{"philly", "Philadelphia, PA"},
		{"D.C.", "Washington"},
		{"uiuc", "Champaign"},
		{"stl", "St. Louis"},
	}
	for _, p := range pairs {
		a, b := c.Canonicalize(p[0]), c.Canonicalize(p[1])
		if a != b {
			t.Errorf("aliases %q and %q canonicalize differently: %q vs %q", p[0], p[1], a, b)
		}
	}
}

// TestEmbeddedTableParses guards the data asset against bad edits.
func TestEmbeddedTableParses(t *testing.T) {
	aliases, err := parseAliases(embeddedAliases)
	if err != nil {
		t.Fatalf("parseAliases() error = %v", err)
	}
	if len(aliases) == 0 {
		t.Fatal("embedded alias table is empty")
	}
	for token, canonical := range aliases {
		if strip(token) != token {
			t.Errorf("alias token %q is not in stripped form", token)
		}
		if aliases[canonical] != canonical {
			t.Errorf("canonical key %q does not map to itself", canonical)
		}
	}
}
