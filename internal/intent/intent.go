// Package intent classifies an annotation by the shorthand written in its note.
package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind is the classified purpose of an annotation
type Kind int

const (
	Ignore Kind = iota
	StructuredQA
	GenerateFlashcard
	Define
	FreeNote
)

var kindNames = map[Kind]string{
	Ignore:            "ignore",
	StructuredQA:      "structured-qa",
	GenerateFlashcard: "generate-flashcard",
	Define:            "define",
	FreeNote:          "free-note",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// QA is a question with an optional answer. A blank answer asks for one to
// be generated.
type QA struct {
	Question string
	Answer   string
}

// Intent is the result of classifying a note
type Intent struct {
	Kind  Kind
	Pairs []QA   // StructuredQA only
	Word  string // Define only
	Rule  string // name of the rule that matched
}

// NeedsGeneration reports whether any part of the intent requires the
// completion backend. Define is resolved separately against the local
// definition source.
func (i Intent) NeedsGeneration() bool {
	switch i.Kind {
	case GenerateFlashcard, Define, FreeNote:
		return true
	case StructuredQA:
		for _, p := range i.Pairs {
			if p.Answer == "" {
				return true
			}
		}
	}
	return false
}

// Rule maps a note/highlight pair to an intent when its predicate holds
type Rule struct {
	Name  string
	Match func(note, highlight string) (Intent, bool)
}

// Rules are evaluated top-down; the first match wins. Q/A detection runs
// before the bare shorthands, and explicit shorthands run before the
// single-word heuristic.
var Rules = []Rule{
	{Name: "structured-qa", Match: matchStructuredQA},
	{Name: "shorthand-q", Match: matchShorthandQ},
	{Name: "shorthand-d", Match: matchShorthandD},
	{Name: "single-word", Match: matchSingleWord},
	{Name: "free-note", Match: matchFreeNote},
}

// Classify returns the intent of an annotation. It never fails: anything
// that matches no rule is ignored.
func Classify(note, highlight string) Intent {
	note = normalizeNote(note)
	for _, r := range Rules {
		if in, ok := r.Match(note, highlight); ok {
			in.Rule = r.Name
			return in
		}
	}
	return Intent{Kind: Ignore, Rule: "ignore"}
}

func matchStructuredQA(note, _ string) (Intent, bool) {
	pairs := ParseQuestions(note)
	if len(pairs) == 0 {
		return Intent{}, false
	}
	return Intent{Kind: StructuredQA, Pairs: pairs}, true
}

func matchShorthandQ(note, _ string) (Intent, bool) {
	switch strings.ToLower(note) {
	case "q", "ankify":
		return Intent{Kind: GenerateFlashcard}, true
	}
	return Intent{}, false
}

func matchShorthandD(note, highlight string) (Intent, bool) {
	if !strings.EqualFold(note, "d") {
		return Intent{}, false
	}
	return Intent{Kind: Define, Word: Headword(highlight)}, true
}

func matchSingleWord(note, highlight string) (Intent, bool) {
	if note != "" {
		return Intent{}, false
	}
	word := stripNonWord(highlight)
	if word == "" || strings.IndexFunc(word, unicode.IsSpace) >= 0 {
		return Intent{}, false
	}
	return Intent{Kind: Define, Word: Headword(highlight)}, true
}

func matchFreeNote(note, _ string) (Intent, bool) {
	if note == "" {
		return Intent{}, false
	}
	return Intent{Kind: FreeNote}, true
}

// ParseQuestions extracts Q:/A: pairs from a note. A Q: line takes the
// answer from an A: line directly below it; otherwise the answer is blank.
// Lines that are neither are skipped.
func ParseQuestions(text string) []QA {
	lines := strings.Split(normalizeNote(text), "\n")

	var pairs []QA
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "Q:") {
			continue
		}
		qa := QA{Question: strings.TrimSpace(line[2:])}
		if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if strings.HasPrefix(next, "A:") {
				qa.Answer = strings.TrimSpace(next[2:])
				i++
			}
		}
		pairs = append(pairs, qa)
	}
	return pairs
}

// Headword turns a highlight into a dictionary headword: surrounding
// punctuation removed and the first letter capitalised.
func Headword(highlight string) string {
	word := stripNonWord(highlight)
	if word == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + word[size:]
}

func stripNonWord(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

func normalizeNote(note string) string {
	note = strings.ReplaceAll(note, "\r\n", "\n")
	note = strings.ReplaceAll(note, "<br>", "\n")
	return strings.TrimSpace(note)
}
