// Package glossary holds the static mapping from canonical gloss tokens to
// sign clip filenames, plus the synonym table that folds NLP vocabulary
// onto the dataset vocabulary. Both maps are loaded once at startup and
// never mutated afterwards.
package glossary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Glossary maps gloss tokens to clip filenames. Synonyms maps NLP output
// tokens to canonical tokens; an empty string value means the token is a
// filler and should be dropped.
type Glossary struct {
	Signs    map[string]string `yaml:"signs"`
	Synonyms map[string]string `yaml:"synonyms"`
}

// Default returns the compiled-in glossary covering the emergency
// vocabulary of the v1 dataset.
func Default() *Glossary {
	return &Glossary{
		Signs: map[string]string{
			// Emergency
			"اسعاف": "ambulance.mov",
			"نجده":  "emergency.mov",
			"شرطه":  "police.mov",
			// Accidents and danger
			"حادث": "accident.mov",
			"حريق": "fire.mov",
			"خطر":  "danger.mov",
			// Utilities
			"كهربا": "power_cut.mov",
			"قطع":   "power_cut.mov",
			// Problems
			"مشكله": "big_problem.mov",
			// Network
			"شبكه":  "no_signal.mov",
			"مفيش":  "no_signal.mov",
		},
		Synonyms: map[string]string{
			"حرائق": "حريق",
			"نار":   "حريق",
			"حريقه": "حريق",
			"إسعاف": "اسعاف",
			"سياره": "حادث",
			"حادثه": "حادث",
			"كبيره": "مشكله",
			"مشاكل": "مشكله",
			// Fillers dropped from gloss sequences
			"لا":   "",
			"فقط":  "",
			"وصول": "",
		},
	}
}

// Load reads a glossary from a YAML file. An empty path returns the
// compiled-in default.
func Load(path string) (*Glossary, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary %s: %w", path, err)
	}

	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary %s: %w", path, err)
	}
	if len(g.Signs) == 0 {
		return nil, fmt.Errorf("glossary %s defines no signs", path)
	}
	if g.Synonyms == nil {
		g.Synonyms = make(map[string]string)
	}
	return &g, nil
}

// Clip returns the clip filename for a canonical token.
func (g *Glossary) Clip(token string) (string, bool) {
	clip, ok := g.Signs[token]
	return clip, ok
}

// Resolve maps a raw token to a canonical gloss token. The second return
// is false when the token is unknown or a dropped filler.
func (g *Glossary) Resolve(token string) (string, bool) {
	if _, ok := g.Signs[token]; ok {
		return token, true
	}
	mapped, ok := g.Synonyms[token]
	if !ok || mapped == "" {
		return "", false
	}
	if _, ok := g.Signs[mapped]; !ok {
		return "", false
	}
	return mapped, true
}
