package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeArabicHamzaVariants(t *testing.T) {
	assert.Equal(t, "اسعاف", NormalizeArabic("إسعاف"))
	assert.Equal(t, "امل", NormalizeArabic("أمل"))
	assert.Equal(t, "الان", NormalizeArabic("آلان"))
}

func TestNormalizeArabicLetterFolding(t *testing.T) {
	assert.Equal(t, "مستشفي", NormalizeArabic("مستشفى"))
	assert.Equal(t, "سوال", NormalizeArabic("سؤال"))
	assert.Equal(t, "طواري", NormalizeArabic("طوارئ"))
	assert.Equal(t, "مشكله", NormalizeArabic("مشكلة"))
}

func TestNormalizeArabicStripsTashkeel(t *testing.T) {
	assert.Equal(t, "حريق", NormalizeArabic("حَرِيقٌ"))
}

func TestNormalizeArabicTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "خطر", NormalizeArabic("  خطر \n"))
}

func TestNormalizeArabicIdempotent(t *testing.T) {
	inputs := []string{"إسعاف", "حَرِيقٌ", "مشكلة كبيرة", "hello", ""}
	for _, in := range inputs {
		once := NormalizeArabic(in)
		assert.Equal(t, once, NormalizeArabic(once), "input %q", in)
	}
}

func TestNormalizeArabicPassesLatinThrough(t *testing.T) {
	assert.Equal(t, "fire truck 7", NormalizeArabic("fire truck 7"))
}
