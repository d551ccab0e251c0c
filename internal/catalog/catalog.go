// Package catalog holds the static table of legal voice choices keyed by
// gender and language.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrIncomplete = errors.New("catalog: incomplete voice table")

// Option is one selectable value: Key is the canonical lower-case form,
// Label is what the user is shown.
type Option struct {
	Key   string
	Label string
}

// Catalog is read-only after construction.
type Catalog struct {
	genders   []Option
	languages []Option
	voices    map[string]map[string][]string
}

var defaultGenders = []Option{
	{Key: "male", Label: "Male"},
	{Key: "female", Label: "Female"},
}

var defaultLanguages = []Option{
	{Key: "english", Label: "English"},
	{Key: "french", Label: "French"},
	{Key: "arabic", Label: "Arabic"},
}

// Default returns the built-in Azure neural voice table.
func Default() *Catalog {
	c, err := New(map[string]map[string][]string{
		"female": {
			"arabic":  {"ar-DZ-AminaNeural"},
			"french":  {"fr-FR-DeniseNeural"},
			"english": {"en-US-AriaNeural"},
		},
		"male": {
			"arabic":  {"ar-DZ-IsmaelNeural"},
			"french":  {"fr-FR-HenriNeural"},
			"english": {"en-US-ChristopherNeural"},
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// New validates and freezes a gender -> language -> voices table. Every
// gender and language offered to users must have at least one voice.
func New(table map[string]map[string][]string) (*Catalog, error) {
	c := &Catalog{
		genders:   defaultGenders,
		languages: defaultLanguages,
		voices:    make(map[string]map[string][]string, len(defaultGenders)),
	}
	for _, g := range c.genders {
		byLang := table[g.Key]
		c.voices[g.Key] = make(map[string][]string, len(c.languages))
		for _, l := range c.languages {
			voices := byLang[l.Key]
			if len(voices) == 0 {
				return nil, fmt.Errorf("%w: no voices for %s/%s", ErrIncomplete, g.Key, l.Key)
			}
			cleaned := make([]string, 0, len(voices))
			for _, v := range voices {
				v = strings.TrimSpace(v)
				if v == "" {
					return nil, fmt.Errorf("%w: blank voice id for %s/%s", ErrIncomplete, g.Key, l.Key)
				}
				if slices.Contains(cleaned, v) {
					continue
				}
				cleaned = append(cleaned, v)
			}
			c.voices[g.Key][l.Key] = cleaned
		}
	}
	return c, nil
}

// GenderLabels returns the ordered choices shown for the gender prompt.
func (c *Catalog) GenderLabels() []string { return labels(c.genders) }

// LanguageLabels returns the ordered choices shown for the language prompt.
func (c *Catalog) LanguageLabels() []string { return labels(c.languages) }

// MatchGender returns the canonical gender key for a case-insensitive exact match.
func (c *Catalog) MatchGender(text string) (string, bool) { return match(c.genders, text) }

// MatchLanguage returns the canonical language key for a case-insensitive exact match.
func (c *Catalog) MatchLanguage(text string) (string, bool) { return match(c.languages, text) }

// Voices returns a copy of the voices for the pair, or nil when the pair is unknown.
func (c *Catalog) Voices(gender, language string) []string {
	return slices.Clone(c.voices[gender][language])
}

// Table returns a deep copy of the whole table.
func (c *Catalog) Table() map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(c.voices))
	for g, byLang := range c.voices {
		out[g] = make(map[string][]string, len(byLang))
		for l, v := range byLang {
			out[g][l] = slices.Clone(v)
		}
	}
	return out
}

func labels(opts []Option) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

func match(opts []Option, text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, o := range opts {
		if strings.EqualFold(o.Label, text) {
			return o.Key, true
		}
	}
	return "", false
}
