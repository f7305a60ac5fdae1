package ir

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TermSlug derives the normalized slug of an author's term.
//
// Normalization steps:
//  1. NFD decomposition, combining marks removed, NFC recomposition
//     ("Zoë" and "Zoë" both become "zoe")
//  2. Lower-casing (language-neutral)
//  3. Every run of characters outside [a-z0-9] collapsed to a single '-'
//  4. Leading and trailing '-' trimmed
//
// The prefix is prepended verbatim. A login with no usable characters yields
// the prefix alone, trimmed of a trailing '-'.
//
// A transform.Chain is stateful, so a fresh chain is built per call.
func TermSlug(prefix, login string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		cases.Lower(language.Und),
	)
	folded, _, err := transform.String(t, login)
	if err != nil {
		folded = strings.ToLower(login)
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(folded))
	b.WriteString(prefix)

	dash := false
	wrote := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && wrote {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			wrote = true
			continue
		}
		dash = true
	}

	if !wrote {
		return strings.TrimRight(prefix, "-")
	}
	return b.String()
}

// TermName returns the human-readable name of an author's term.
func TermName(a Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Login
}

// TermDescription renders the searchable description stored on an author's
// term: display name, login, id and email, space separated, empty parts
// omitted.
func TermDescription(a Author) string {
	parts := make([]string, 0, 4)
	if a.DisplayName != "" {
		parts = append(parts, a.DisplayName)
	}
	if a.Login != "" {
		parts = append(parts, a.Login)
	}
	parts = append(parts, strconv.FormatInt(a.ID, 10))
	if a.Email != "" {
		parts = append(parts, a.Email)
	}
	return strings.Join(parts, " ")
}

// AuthorSlug returns the preferred slug of an author's term. Logins without
// any usable character (every non-Latin login) fall back to the author id.
func AuthorSlug(prefix string, a Author) string {
	if TermSlug("", a.Login) == "" {
		return TermSlug(prefix, strconv.FormatInt(a.ID, 10))
	}
	return TermSlug(prefix, a.Login)
}

// DisambiguatedSlug returns the n-th alternative to slug for the author
// with the given id: "<slug>-<id>" for n = 1, "<slug>-<id>-<n>" after that.
func DisambiguatedSlug(slug string, authorID int64, n int) string {
	s := slug + "-" + strconv.FormatInt(authorID, 10)
	if n > 1 {
		s += "-" + strconv.Itoa(n)
	}
	return s
}

// NewTermSpec builds the create-or-fetch request for an author's term.
func NewTermSpec(taxonomy, slugPrefix string, a Author) TermSpec {
	return TermSpec{
		Taxonomy:    taxonomy,
		Slug:        AuthorSlug(slugPrefix, a),
		Name:        TermName(a),
		Description: TermDescription(a),
		AuthorID:    a.ID,
	}
}
