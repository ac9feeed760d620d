package intent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []QA
	}{
		{
			name: "single question",
			text: "Q: What is the author's name?\nA: A thing",
			want: []QA{{Question: "What is the author's name?", Answer: "A thing"}},
		},
		{
			name: "question without answer",
			text: "Q: Some card",
			want: []QA{{Question: "Some card", Answer: ""}},
		},
		{
			name: "multiple questions",
			text: "\nQ: A question\nQ: Another question\nA: With an answer\nnon-question line\n\nQ: Last question\nA: With an answer\n    ",
			want: []QA{
				{Question: "A question", Answer: ""},
				{Question: "Another question", Answer: "With an answer"},
				{Question: "Last question", Answer: "With an answer"},
			},
		},
		{
			name: "empty answer line is consumed",
			text: "Q: What does this quote mean? <br>A:",
			want: []QA{{Question: "What does this quote mean?", Answer: ""}},
		},
		{
			name: "no questions",
			text: "just a thought",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuestions(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseQuestions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		note      string
		highlight string
		wantKind  Kind
		wantWord  string
		wantRule  string
	}{
		{name: "bare q", note: "q", highlight: "A long passage about things.", wantKind: GenerateFlashcard, wantRule: "shorthand-q"},
		{name: "bare Q with whitespace", note: "  Q\n", highlight: "word", wantKind: GenerateFlashcard},
		{name: "ankify shorthand", note: "Ankify", highlight: "A passage.", wantKind: GenerateFlashcard},
		{name: "q on single word still flashcard", note: "q", highlight: "exegesis", wantKind: GenerateFlashcard},
		{name: "bare d", note: "d", highlight: "whorls,", wantKind: Define, wantWord: "Whorls", wantRule: "shorthand-d"},
		{name: "bare D on phrase", note: "D", highlight: "“gestalt tags,”", wantKind: Define, wantWord: "Gestalt tags"},
		{name: "implicit single word", note: "", highlight: "exegesis", wantKind: Define, wantWord: "Exegesis", wantRule: "single-word"},
		{name: "implicit single word with punctuation", note: "", highlight: " ‘ethereal’. ", wantKind: Define, wantWord: "Ethereal"},
		{name: "single word with note is free note", note: "Also a teacher", highlight: "Radiya", wantKind: FreeNote, wantRule: "free-note"},
		{name: "structured qa beats shorthand", note: "Q: q\nA: d", highlight: "x", wantKind: StructuredQA, wantRule: "structured-qa"},
		{name: "free note", note: "I like this.<br>It's cool", highlight: "Euler and Gauss were legendary miners", wantKind: FreeNote},
		{name: "multi word no note ignored", note: "", highlight: "Do not go gentle into that good night.", wantKind: Ignore, wantRule: "ignore"},
		{name: "punctuation only ignored", note: "", highlight: " — ", wantKind: Ignore},
		{name: "qq is free note", note: "qq", highlight: "word", wantKind: FreeNote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.note, tt.highlight)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Word != tt.wantWord {
				t.Errorf("Word = %q, want %q", got.Word, tt.wantWord)
			}
			if tt.wantRule != "" && got.Rule != tt.wantRule {
				t.Errorf("Rule = %q, want %q", got.Rule, tt.wantRule)
			}
		})
	}
}

func TestClassifyShorthandsIgnoreHighlight(t *testing.T) {
	highlights := []string{"", "x", "exegesis", "A whole sentence with words.", "Q: not a note"}
	for _, h := range highlights {
		for _, note := range []string{"q", "Q"} {
			if got := Classify(note, h); got.Kind != GenerateFlashcard {
				t.Errorf("Classify(%q, %q) = %v, want generate-flashcard", note, h, got.Kind)
			}
		}
		for _, note := range []string{"d", "D"} {
			got := Classify(note, h)
			if got.Kind != Define {
				t.Errorf("Classify(%q, %q) = %v, want define", note, h, got.Kind)
			}
			if got.Word != Headword(h) {
				t.Errorf("Classify(%q, %q).Word = %q, want %q", note, h, got.Word, Headword(h))
			}
		}
	}
}

func TestClassifyStructuredQA(t *testing.T) {
	got := Classify("Q: What is the author's name?\nA: A thing", "...")
	want := []QA{{Question: "What is the author's name?", Answer: "A thing"}}
	if got.Kind != StructuredQA {
		t.Fatalf("Kind = %v, want structured-qa", got.Kind)
	}
	if diff := cmp.Diff(want, got.Pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if got.NeedsGeneration() {
		t.Error("answered pairs should not need generation")
	}

	blank := Classify("Q: Some card", "...")
	if !blank.NeedsGeneration() {
		t.Error("blank answer should need generation")
	}
}

func TestHeadword(t *testing.T) {
	tests := map[string]string{
		"exegesis":       "Exegesis",
		"whorls,":        "Whorls",
		"...":            "",
		"élan":           "Élan",
		"(incandescent)": "Incandescent",
	}
	for in, want := range tests {
		if got := Headword(in); got != want {
			t.Errorf("Headword(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if StructuredQA.String() != "structured-qa" {
		t.Errorf("unexpected name %q", StructuredQA.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("unexpected name for unknown kind")
	}
}
