// Package moderation censors banned words in message content before it
// is persisted or broadcast. Matching is case-insensitive and based on an
// Aho-Corasick automaton so large word lists stay cheap per message.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	hasPatterns bool
}

// NewModerator builds the automaton from the banned-word list. An empty
// list yields a moderator that passes text through untouched.
func NewModerator(bannedWords []string, replacement rune) (*Moderator, error) {
	if len(bannedWords) == 0 {
		return &Moderator{replacement: replacement}, nil
	}

	patterns := make([][]rune, len(bannedWords))
	for i, word := range bannedWords {
		patterns[i] = lowerRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement, hasPatterns: true}, nil
}

// Censor replaces every banned-word occurrence with the replacement rune,
// preserving the length and spacing of the original text.
func (m *Moderator) Censor(original string) string {
	if !m.hasPatterns {
		return original
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(lowerRunes(origRunes), false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		for i := span.Pos; i < span.Pos+len(span.Word) && i < len(origRunes); i++ {
			origRunes[i] = m.replacement
		}
	}
	return string(origRunes)
}

func lowerRunes(input []rune) []rune {
	out := make([]rune, len(input))
	for i, r := range input {
		out[i] = unicode.ToLower(r)
	}
	return out
}
