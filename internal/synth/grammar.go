package synth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownItemType is reported for blocks whose type names no item variant
var ErrUnknownItemType = errors.New("unknown item type")

// ParseWarning describes a malformed response line. The block containing
// it is dropped.
type ParseWarning struct {
	Line int
	Text string
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("line %d: no key separator, dropping block: %q", w.Line, w.Text)
}

// Block is one blank-line separated group of key: value lines
type Block struct {
	Line     int
	Fields   map[string]string
	Examples []string
}

var keyLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_ ]*?)\s*:(.*)$`)

type parseState int

const (
	stateBetween parseState = iota
	stateFields
	stateExamples
	stateDropped
)

// ParseResponse splits a completion response into blocks. Parsing is
// lenient: a line without a key separator drops its whole block and is
// reported as a warning instead of failing the response. Values are
// trimmed, so leading and trailing whitespace is not preserved.
func ParseResponse(text string) ([]Block, []error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var (
		blocks   []Block
		warnings []error
		current  *Block
		state    = stateBetween
	)

	flush := func() {
		if current != nil && state != stateDropped && len(current.Fields) > 0 {
			blocks = append(blocks, *current)
		}
		current = nil
		state = stateBetween
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)

		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "```") {
			// code fences around the whole answer
			continue
		}
		if state == stateDropped {
			continue
		}
		if current == nil {
			current = &Block{Line: lineNo, Fields: make(map[string]string)}
			state = stateFields
		}

		if state == stateExamples && strings.HasPrefix(line, "-") {
			current.Examples = append(current.Examples, unescapeValue(strings.TrimSpace(line[1:])))
			continue
		}

		m := keyLine.FindStringSubmatch(line)
		if m == nil {
			warnings = append(warnings, &ParseWarning{Line: lineNo, Text: line})
			state = stateDropped
			continue
		}

		key := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[2])
		if key == "examples" {
			state = stateExamples
			if value != "" {
				current.Examples = append(current.Examples, unescapeValue(strings.TrimPrefix(value, "- ")))
			}
			continue
		}
		current.Fields[key] = unescapeValue(value)
		state = stateFields
	}
	flush()

	return blocks, warnings
}

// Item converts a block into its typed item
func (b Block) Item() (Item, error) {
	ref := Ref{
		ID:    b.Fields["id"],
		URI:   b.Fields["uri"],
		Title: b.Fields["title"],
	}

	typ := strings.ToLower(b.Fields["type"])
	switch Kind(typ) {
	case KindFlashcard:
		return Flashcard{Ref: ref, Question: first(b.Fields, "q", "question"), Answer: first(b.Fields, "a", "answer")}, nil
	case KindDefinition:
		return Definition{Ref: ref, Word: b.Fields["word"], Definition: b.Fields["definition"], Examples: b.Examples}, nil
	case KindHighlight:
		return Highlight{Ref: ref, Passage: b.Fields["passage"]}, nil
	case KindTodo:
		return Todo{Ref: ref, Description: b.Fields["description"]}, nil
	case KindNote:
		return Note{Ref: ref, Passage: b.Fields["passage"], Note: b.Fields["note"]}, nil
	default:
		return nil, fmt.Errorf("%w %q (block at line %d)", ErrUnknownItemType, typ, b.Line)
	}
}

// DecodeItems parses a response into items. Malformed blocks and unknown
// types are returned as warnings; the remaining items are kept.
func DecodeItems(text string) ([]Item, []error) {
	blocks, warnings := ParseResponse(text)
	items := make([]Item, 0, len(blocks))
	for _, b := range blocks {
		it, err := b.Item()
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		items = append(items, it)
	}
	return items, warnings
}

// EncodeItem writes an item in the response grammar
func EncodeItem(it Item) string {
	var sb strings.Builder
	ref := it.Reference()

	writeField(&sb, "type", string(it.Kind()))
	if ref.ID != "" {
		writeField(&sb, "id", ref.ID)
	}
	writeField(&sb, "uri", ref.URI)
	writeField(&sb, "title", ref.Title)

	switch v := it.(type) {
	case Flashcard:
		writeField(&sb, "q", v.Question)
		writeField(&sb, "a", v.Answer)
	case Definition:
		writeField(&sb, "word", v.Word)
		writeField(&sb, "definition", v.Definition)
		sb.WriteString("examples:\n")
		for _, ex := range v.Examples {
			sb.WriteString("- " + escapeValue(ex) + "\n")
		}
	case Highlight:
		writeField(&sb, "passage", v.Passage)
	case Todo:
		writeField(&sb, "description", v.Description)
	case Note:
		writeField(&sb, "passage", v.Passage)
		writeField(&sb, "note", v.Note)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// EncodeItems writes items as blank-line separated blocks
func EncodeItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, EncodeItem(it))
	}
	return strings.Join(parts, "\n\n")
}

func writeField(sb *strings.Builder, key, value string) {
	value = escapeValue(value)
	if value == "" {
		sb.WriteString(key + ":\n")
		return
	}
	sb.WriteString(key + ": " + value + "\n")
}

func escapeValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

func unescapeValue(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "<br>")
	s = strings.ReplaceAll(s, "<br />", "<br>")
	return strings.ReplaceAll(s, "<br>", "\n")
}

func first(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return ""
}
