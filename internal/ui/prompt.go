package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
)

// CopyPrompt puts the manual prompt on the clipboard. When no clipboard is
// available the prompt is written to a file in the temp directory instead.
// It returns where the prompt went.
func CopyPrompt(prompt string) (string, error) {
	if err := clipboard.WriteAll(prompt); err == nil {
		return "clipboard", nil
	}
	return WritePromptFile(os.TempDir(), prompt)
}

// WritePromptFile writes the prompt to a timestamped file in dir and
// returns its path
func WritePromptFile(dir, prompt string) (string, error) {
	name := fmt.Sprintf("ankify-prompt-%s.md", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(prompt), 0600); err != nil {
		return "", fmt.Errorf("failed to write prompt file: %w", err)
	}
	return path, nil
}
