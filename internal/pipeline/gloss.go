package pipeline

import (
	"errors"
	"strings"

	"github.com/tafahom/backend/internal/aiclient"
	"github.com/tafahom/backend/internal/glossary"
)

// ErrNoSupportedSigns is returned when gloss resolution drops every token.
var ErrNoSupportedSigns = errors.New("no supported sign tokens in gloss output")

// glossTokens flattens an NLP output into raw tokens. A string output is
// whitespace-split after Arabic normalization; a token list is normalized
// per token.
func glossTokens(out *aiclient.NLPOutput) []string {
	if len(out.Tokens) > 0 {
		tokens := make([]string, 0, len(out.Tokens))
		for _, t := range out.Tokens {
			if n := NormalizeArabic(t); n != "" {
				tokens = append(tokens, n)
			}
		}
		return tokens
	}
	return strings.Fields(NormalizeArabic(out.Text))
}

// resolveGloss maps raw NLP tokens onto the glossary vocabulary, applying
// synonym folding and dropping fillers. Order is preserved. An empty
// result is an error: a gloss sequence with no renderable sign cannot
// drive the video assembler.
func resolveGloss(out *aiclient.NLPOutput, g *glossary.Glossary) ([]string, error) {
	raw := glossTokens(out)

	resolved := make([]string, 0, len(raw))
	for _, token := range raw {
		if canonical, ok := g.Resolve(token); ok {
			resolved = append(resolved, canonical)
		}
	}

	if len(resolved) == 0 {
		return nil, ErrNoSupportedSigns
	}
	return resolved, nil
}
