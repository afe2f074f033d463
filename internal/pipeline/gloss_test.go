package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tafahom/backend/internal/aiclient"
	"github.com/tafahom/backend/internal/glossary"
)

func TestResolveGlossFromTokenList(t *testing.T) {
	out := &aiclient.NLPOutput{Tokens: []string{"حريق", "اسعاف"}}

	gloss, err := resolveGloss(out, glossary.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"حريق", "اسعاف"}, gloss)
}

func TestResolveGlossFromTextSplitsAndNormalizes(t *testing.T) {
	out := &aiclient.NLPOutput{Text: "إسعاف حَرِيقٌ"}

	gloss, err := resolveGloss(out, glossary.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"اسعاف", "حريق"}, gloss)
}

func TestResolveGlossFoldsSynonyms(t *testing.T) {
	out := &aiclient.NLPOutput{Tokens: []string{"نار", "سياره"}}

	gloss, err := resolveGloss(out, glossary.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"حريق", "حادث"}, gloss)
}

func TestResolveGlossDropsFillersAndUnknowns(t *testing.T) {
	out := &aiclient.NLPOutput{Tokens: []string{"لا", "حريق", "zzz", "فقط"}}

	gloss, err := resolveGloss(out, glossary.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"حريق"}, gloss, "fillers and unknown tokens must not reach the assembler")
}

func TestResolveGlossPreservesOrder(t *testing.T) {
	out := &aiclient.NLPOutput{Tokens: []string{"خطر", "حريق", "اسعاف", "خطر"}}

	gloss, err := resolveGloss(out, glossary.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"خطر", "حريق", "اسعاف", "خطر"}, gloss)
}

func TestResolveGlossAllDroppedIsError(t *testing.T) {
	out := &aiclient.NLPOutput{Tokens: []string{"لا", "zzz"}}

	_, err := resolveGloss(out, glossary.Default())
	assert.ErrorIs(t, err, ErrNoSupportedSigns)
}

func TestResolveGlossEmptyOutputIsError(t *testing.T) {
	_, err := resolveGloss(&aiclient.NLPOutput{}, glossary.Default())
	assert.ErrorIs(t, err, ErrNoSupportedSigns)
}
