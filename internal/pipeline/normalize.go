package pipeline

import "strings"

// tashkeel diacritics stripped during normalization.
var tashkeel = map[rune]bool{
	'ً': true, // fathatan
	'ٌ': true, // dammatan
	'ٍ': true, // kasratan
	'َ': true, // fatha
	'ُ': true, // damma
	'ِ': true, // kasra
	'ّ': true, // shadda
	'ْ': true, // sukun
}

// NormalizeArabic collapses hamza/alef variants and strips diacritics so
// NLP output tokens line up with the glossary vocabulary. The function is
// a projection: applying it twice equals applying it once.
func NormalizeArabic(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch r {
		case 'إ', 'أ', 'آ', 'ا':
			b.WriteRune('ا')
		case 'ى':
			b.WriteRune('ي')
		case 'ؤ':
			b.WriteRune('و')
		case 'ئ':
			b.WriteRune('ي')
		case 'ة':
			b.WriteRune('ه')
		default:
			if !tashkeel[r] {
				b.WriteRune(r)
			}
		}
	}

	return strings.TrimSpace(b.String())
}
