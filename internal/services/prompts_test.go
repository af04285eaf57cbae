package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMatchUserPromptTruncatesExcerptOnRuneBoundary(t *testing.T) {
	fullText := strings.Repeat("ü", matchExcerptLimit+500)

	prompt := matchUserPrompt("Catan", "Catan Rules", "https://example.com/catan.pdf", fullText)
	if !utf8.ValidString(prompt) {
		t.Fatalf("prompt is not valid UTF-8")
	}

	_, excerpt, ok := strings.Cut(prompt, "Extracted text begins:\n")
	if !ok {
		t.Fatalf("prompt missing excerpt block: %q", prompt)
	}
	if n := utf8.RuneCountInString(excerpt); n != matchExcerptLimit {
		t.Fatalf("excerpt runes: want=%d got=%d", matchExcerptLimit, n)
	}
}

func TestMatchUserPromptKeepsShortTextWhole(t *testing.T) {
	prompt := matchUserPrompt("Azul", "Azul Rules", "https://example.com/azul.pdf", "Place tiles on your board.")
	if !strings.HasSuffix(prompt, "Place tiles on your board.") {
		t.Fatalf("short text should pass through untouched: %q", prompt)
	}
}
