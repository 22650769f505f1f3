package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"strips llc suffix", "Thompson Builders LLC", "thompson builders"},
		{"strips ltd suffix", "Thompson Builders Ltd", "thompson builders"},
		{"strips limited suffix", "Thompson Builders Limited", "thompson builders"},
		{"strips dotted suffix", "Acme Corp.", "acme"},
		{"strips punctuation", "O'Brien & Sons, Inc", "obrien and sons"},
		{"collapses whitespace", "  Acme   Group  ", "acme group"},
		{"folds diacritics", "Société Générale", "societe generale"},
		{"dash becomes space", "Build-It Services", "build it services"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Name(tt.in))
		})
	}
}

func TestTitleKeepsSeniority(t *testing.T) {
	assert.Equal(t, "senior site manager", Title("Senior Site Manager"))
	assert.Equal(t, "site manager", Title("Site   Manager"))
}

func TestCoreTitle(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Senior Site Manager", "site manager"},
		{"Site Manager", "site manager"},
		{"Lead Quantity Surveyor", "quantity surveyor"},
		{"Graduate Engineer", "engineer"},
		{"Electrician", "electrician"},
		// All-modifier titles fall back to the full normalized form.
		{"Senior Lead", "senior lead"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, CoreTitle(tt.in))
		})
	}
}

func TestLocationsCompatible(t *testing.T) {
	assert.True(t, LocationsCompatible("london", "london"))
	assert.True(t, LocationsCompatible("london", "east london"))
	assert.True(t, LocationsCompatible("greater manchester", "manchester"))
	assert.False(t, LocationsCompatible("london", "leeds"))
	assert.False(t, LocationsCompatible("", "london"))
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Site Manager", "Thompson Builders Ltd", "London")
	b := Fingerprint("site   manager", "Thompson Builders Limited", "LONDON")
	assert.Equal(t, a, b, "equivalent inputs must produce the same fingerprint")

	c := Fingerprint("Senior Site Manager", "Thompson Builders Ltd", "London")
	assert.NotEqual(t, a, c, "seniority distinguishes fingerprints")

	d := Fingerprint("Site Manager", "Thompson Builders Ltd", "Leeds")
	assert.NotEqual(t, a, d, "location distinguishes fingerprints")
}

func TestSimilarityBoundary(t *testing.T) {
	// 20 runes, distance 3: exactly 85.0.
	at85a := "abcdefghijklmnopqrst"
	at85b := "xxxdefghijklmnopqrst"
	assert.InDelta(t, 85.0, Similarity(at85a, at85b), 0.0001)

	// 25 runes, distance 4: exactly 84.0.
	at84a := "abcdefghijklmnopqrstuvwxy"
	at84b := "xxxxefghijklmnopqrstuvwxy"
	assert.InDelta(t, 84.0, Similarity(at84a, at84b), 0.0001)
}

func TestSimilarityEdges(t *testing.T) {
	assert.InDelta(t, 100.0, Similarity("", ""), 0.0001)
	assert.InDelta(t, 100.0, Similarity("acme", "acme"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("abcd", "wxyz"), 0.0001)
}
