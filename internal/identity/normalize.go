// Package identity compares holder identities across event sources using
// locale-aware normalization.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingFiller are the characters stripped before taking an initial.
const leadingFiller = "-' "

// translit maps lowercase non-Latin letters onto a best-effort Latin
// rendering. Cyrillic and Greek are covered in full, Arabic partially.
// Han names are deliberately not mapped: a single-character approximation
// would produce initials that match the wrong person, and an unrepresentable
// name must not silently match everything.
var translit = map[rune]string{
	// Cyrillic
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'є': "ie", 'і': "i", 'ї': "i", 'ґ': "g",
	// Greek
	'α': "a", 'β': "v", 'γ': "g", 'δ': "d", 'ε': "e", 'ζ': "z", 'η': "i",
	'θ': "th", 'ι': "i", 'κ': "k", 'λ': "l", 'μ': "m", 'ν': "n", 'ξ': "x",
	'ο': "o", 'π': "p", 'ρ': "r", 'σ': "s", 'ς': "s", 'τ': "t", 'υ': "y",
	'φ': "f", 'χ': "ch", 'ψ': "ps", 'ω': "o",
	// Arabic (isolated forms of the common name letters)
	'ا': "a", 'ب': "b", 'ت': "t", 'ث': "th", 'ج': "j", 'ح': "h", 'خ': "kh",
	'د': "d", 'ر': "r", 'ز': "z", 'س': "s", 'ش': "sh", 'ع': "a", 'ف': "f",
	'ق': "q", 'ك': "k", 'ل': "l", 'م': "m", 'ن': "n", 'ه': "h", 'و': "w",
	'ي': "y",
}

// stripMarks removes combining diacritical marks after NFD decomposition.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the input, transliterates known non-Latin scripts,
// strips diacritics and drops everything outside a-z and space.
// Marks are stripped before transliteration so accented letters of the mapped
// scripts still hit their base-letter mapping.
func Normalize(input string) string {
	stripped, _, err := transform.String(stripMarks, input)
	if err != nil {
		stripped = input
	}

	var latin strings.Builder
	for _, r := range stripped {
		if mapped, ok := translit[unicode.ToLower(r)]; ok {
			latin.WriteString(mapped)
			continue
		}
		latin.WriteRune(r)
	}

	var out strings.Builder
	for _, r := range strings.ToLower(latin.String()) {
		if (r >= 'a' && r <= 'z') || r == ' ' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// ToInitial returns the uppercased first A-Z character of the normalized
// input, after stripping leading filler. False when no A-Z character
// survives normalization, e.g. for untransliterable scripts.
func ToInitial(input string) (string, bool) {
	normalized := Normalize(strings.TrimLeft(input, leadingFiller))
	for _, r := range normalized {
		if r >= 'a' && r <= 'z' {
			return strings.ToUpper(string(r)), true
		}
	}
	return "", false
}
