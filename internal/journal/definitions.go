package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcao2/readwise-ankify/internal/synth"
)

var _ synth.Dictionary = (*Journal)(nil)

// LookupDefinition returns a cached definition for word (case-insensitive)
func (j *Journal) LookupDefinition(ctx context.Context, word string) (synth.Definition, bool, error) {
	var (
		def      synth.Definition
		examples string
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT word, definition, examples FROM definitions WHERE word = ?
	`, strings.TrimSpace(word))
	if err := row.Scan(&def.Word, &def.Definition, &examples); err != nil {
		if isNoRows(err) {
			return synth.Definition{}, false, nil
		}
		return synth.Definition{}, false, fmt.Errorf("querying definition: %w", err)
	}

	if err := json.Unmarshal([]byte(examples), &def.Examples); err != nil {
		return synth.Definition{}, false, fmt.Errorf("decoding examples of %q: %w", word, err)
	}
	return def, true, nil
}

// SaveDefinition stores or replaces the cached definition of a word
func (j *Journal) SaveDefinition(ctx context.Context, def synth.Definition) error {
	examples := def.Examples
	if examples == nil {
		examples = []string{}
	}
	examplesJSON, err := json.Marshal(examples)
	if err != nil {
		return fmt.Errorf("marshalling examples: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO definitions (word, definition, examples, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(word) DO UPDATE SET
			definition = excluded.definition,
			examples = excluded.examples,
			updated_at = excluded.updated_at
	`, strings.TrimSpace(def.Word), def.Definition, string(examplesJSON), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving definition: %w", err)
	}
	return nil
}
