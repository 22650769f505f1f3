// Package normalize provides the pure string transforms the engine matches on:
// name, title and location canonicalization plus posting fingerprints.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes stripped during company
// name normalization. Longest variants first so "limited" wins over "ltd".
var legalSuffixes = []string{
	" incorporated",
	" corporation",
	" limited",
	" l.l.c.", " l.l.c", " llc",
	" l.l.p.", " l.l.p", " llp",
	" p.l.c.", " plc",
	" inc.", " inc",
	" corp.", " corp",
	" ltd.", " ltd",
	" l.p.", " l.p", " lp",
	" pllc",
	" p.c.", " p.c", " pc",
	" co.", " co",
	" group holdings",
	" holdings",
}

// seniorityModifiers are stripped when extracting a core title for repost
// similarity. They stay in the normalized title so fingerprints distinguish
// "senior site manager" from "site manager".
var seniorityModifiers = map[string]bool{
	"senior":    true,
	"snr":       true,
	"sr":        true,
	"junior":    true,
	"jnr":       true,
	"jr":        true,
	"lead":      true,
	"principal": true,
	"head":      true,
	"chief":     true,
	"trainee":   true,
	"graduate":  true,
	"assistant": true,
	"deputy":    true,
	"interim":   true,
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// foldDiacritics decomposes accented runes and drops the combining marks,
// so "Société" and "Societe" normalize identically.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name canonicalizes a company name: lowercase, diacritics folded, legal
// suffix stripped, punctuation stripped, whitespace collapsed.
func Name(name string) string {
	name = fold(name)
	if name == "" {
		return ""
	}

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = stripPunct(name)
	return collapse(name)
}

// Title canonicalizes a job title. Seniority modifiers are kept; use
// CoreTitle for repost similarity comparison.
func Title(title string) string {
	return collapse(stripPunct(fold(title)))
}

// CoreTitle returns the normalized title with seniority modifiers removed.
// "Senior Site Manager" and "Site Manager" share the core "site manager".
func CoreTitle(title string) string {
	words := strings.Fields(Title(title))
	kept := words[:0]
	for _, w := range words {
		if seniorityModifiers[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		// Title was nothing but modifiers; fall back to the full form.
		return Title(title)
	}
	return strings.Join(kept, " ")
}

// Location canonicalizes a location string.
func Location(loc string) string {
	return collapse(stripPunct(fold(loc)))
}

// LocationsCompatible reports whether two normalized locations refer to the
// same place for repost matching: equal, or one contains the other
// ("london" vs "east london").
func LocationsCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Fingerprint derives the deterministic identity of a posting from its
// normalized title, company name and location.
func Fingerprint(title, companyName, location string) string {
	h := sha256.Sum256([]byte(Title(title) + "|" + Name(companyName) + "|" + Location(location)))
	return hex.EncodeToString(h[:16])
}

// FirstToken returns the first whitespace-delimited token of a normalized
// string, used to narrow fuzzy-match candidate sets.
func FirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	return s
}

func stripPunct(s string) string {
	return strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"(", "",
		")", "",
		"&", "and",
		"/", " ",
		"-", " ",
		"–", " ",
	).Replace(s)
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}
