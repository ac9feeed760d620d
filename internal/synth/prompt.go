package synth

import (
	"strings"
)

// SystemPrompt is the few-shot instruction sent with every batch
const SystemPrompt = `## Instruction

You turn a reader's book and article annotations into study material: flashcards, definitions, highlights, todos and notes. Each annotation gives a passage, possibly a note written by the reader, the title and author of the work, a uri and an id.

Answer with one block per item, blocks separated by a blank line, each line formatted as "key: value". Every block MUST repeat the id, uri and title of the annotation it was made from. Write line breaks inside a value as <br>. Do not add any other text.

Rules:
- If the note contains lines like "Q: ...<br>A: ...", make one flashcard per question. When the answer is blank, write a short, correct answer using the passage and your own knowledge.
- If the note is the shorthand "q", write a flashcard with a question and answer of your own that capture the passage.
- If the note is the shorthand "d", or the passage is a single word with no note, make a definition of the word. Use the dictionary form of the word without punctuation. Give a succinct definition that does not use the word itself, and a few example sentences with the word in {braces}.
- If the note describes something the reader should do, make a todo whose description uses the note, the passage and the title as context.
- If the note is a thought or a musing, make a note that keeps the passage and the reader's note.
- If a passage has several words and no note, make a highlight.

## Examples

### Input

passage: It is difficult for a man to understand something when his salary depends on his not understanding it.
note: Q: What does this quote mean?<br>A:
title: The Great Gatsby
author: F. Scott Fitzgerald
uri: www.example.com/gatsby1
id: highlight-g1

passage: Whorls,
note: d
title: The Snail's Journey
author: Author Name
uri: www.example.com/snail1
id: highlight-s1

passage: Do not go gentle into that good night.
note:
title: Do not go gentle into that good night
author: Dylan Thomas
uri: www.example.com/thomas1
id: highlight-t1

passage: You must track technical debt and pay it back quickly, or things go rapidly downhill.
note: i should do this at work. Make cards for creating tests. Refactors. Etc
title: 97 Things Every Programmer Should Know
author: Kevlin Henney
uri: www.example.com/97things1
id: highlight-k1

passage: a generic symbol had formed which encompassed all the strangers in the scape
note: creating a symbol for something before giving it a name<br>similar to the Page concept
title: Diaspora
author: Greg Egan
uri: kindle://book?action=open&asin=B00H6STTU6&location=undefined
id: highlight-d1

### Output

type: flashcard
id: highlight-g1
uri: www.example.com/gatsby1
title: The Great Gatsby
q: What does this quote mean?
a: People struggle to accept truths that would threaten their livelihood.

type: definition
id: highlight-s1
uri: www.example.com/snail1
title: The Snail's Journey
word: Whorl
definition: A pattern of spirals or concentric circles.
examples:
- The {whorl} of the galaxy was a mesmerizing sight.
- The snail's shell had an intricate {whorl}.

type: highlight
id: highlight-t1
uri: www.example.com/thomas1
title: Do not go gentle into that good night
passage: Do not go gentle into that good night.

type: todo
id: highlight-k1
uri: www.example.com/97things1
title: 97 Things Every Programmer Should Know
description: Create tickets to pay back technical debt (tests, refactors) at work.

type: note
id: highlight-d1
uri: kindle://book?action=open&asin=B00H6STTU6&location=undefined
title: Diaspora
passage: a generic symbol had formed which encompassed all the strangers in the scape
note: creating a symbol for something before giving it a name<br>similar to the Page concept`

// BuildPrompt renders requests as the user message of a batch
func BuildPrompt(reqs []Request) string {
	blocks := make([]string, 0, len(reqs))
	for _, r := range reqs {
		blocks = append(blocks, r.block())
	}
	return strings.Join(blocks, "\n\n")
}

// ManualPrompt is the full text a reader can paste into a chat window
// when no backend is wired up
func ManualPrompt(reqs []Request) string {
	return SystemPrompt + "\n\n## Input\n\n" + BuildPrompt(reqs)
}

func (r Request) block() string {
	var sb strings.Builder
	line := func(key, value string) {
		sb.WriteString(key + ":")
		if v := escapeValue(strings.TrimSpace(value)); v != "" {
			sb.WriteString(" " + v)
		}
		sb.WriteString("\n")
	}

	book := r.Input.Book
	line("passage", r.Input.Annotation.Highlight)
	line("note", r.note())
	line("title", book.Title)
	line("author", book.Author)
	line("uri", book.AnnotationURI(r.Input.Annotation))
	line("id", r.Key)

	return strings.TrimRight(sb.String(), "\n")
}
