package slug

import (
	"iter"
	"strings"
	"unicode"
)

// Default is returned for names that produce no usable characters.
const Default = "default"

// Mode selects how parenthesized qualifiers such as "(UR)" are treated.
type Mode int

const (
	// KeepParens folds the qualifier into the slug: "Chest (UR)" -> "chest-ur".
	KeepParens Mode = iota
	// StripParens drops the qualifier: "Chest (UR)" -> "chest".
	StripParens
)

// Slug converts a display name into a lowercase, hyphen separated token.
// Runs of anything that is not a letter or digit collapse to a single hyphen
// and leading/trailing hyphens are trimmed.
func Slug(name string, mode Mode) string {
	s := strings.ToLower(name)
	if mode == StripParens {
		s = stripParens(s)
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	if b.Len() == 0 {
		return Default
	}
	return b.String()
}

// ID is the identity of an item. Qualifiers are kept so that "(SR)" and
// "(UR)" variants of the same good stay distinct items.
func ID(name string) string {
	return Slug(name, KeepParens)
}

// stripParens removes every "(...)" group together with the whitespace in
// front of it. An unbalanced "(" is left untouched.
func stripParens(s string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(s[open:], ')')
		if closing < 0 {
			break
		}
		b.WriteString(strings.TrimRightFunc(s[:open], unicode.IsSpace))
		s = s[open+closing+1:]
	}
	b.WriteString(s)
	return strings.TrimSpace(b.String())
}

const (
	imageDir     = "images"
	defaultImage = "images/items/default.png"
)

// ImageCandidates yields the image locations to try for an item, in order,
// until the consumer stops. The final candidate is always the shared
// placeholder.
func ImageCandidates(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		name = strings.TrimSpace(name)
		if name != "" {
			if !yield(imageDir + "/items/" + Slug(name, StripParens) + ".png") {
				return
			}
			if !yield(imageDir + "/" + name + ".jpg") {
				return
			}
		}
		yield(defaultImage)
	}
}
