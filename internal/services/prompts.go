package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tablemind/rulebook-backend/internal/rag/retriever"
)

const answerSystemPrompt = `You answer questions about board game rules using ONLY the rulebook excerpts provided in the context.
Cite rules faithfully; do not guess at rules that are not in the context.
If the context does not cover the question, reply exactly: ` + unansweredReply + `
Keep answers short and concrete, and mention the page number when the excerpt includes one.`

// unansweredReply is the canonical "not in the rules" answer; the client
// keys off this exact sentence.
const unansweredReply = "The rules provided don't specify this."

const passageSeparator = "\n\n---\n\n"

// formatContext renders reranked passages into the context block of the
// answer prompt, one excerpt per passage with its provenance line.
func formatContext(passages []retriever.Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, fmt.Sprintf("From %s (page %s):\n%s", p.DocTitle, pageLabel(p), p.Text))
	}
	return strings.Join(parts, passageSeparator)
}

func pageLabel(p retriever.Passage) string {
	if p.PageEnd > p.PageStart {
		return fmt.Sprintf("%d-%d", p.PageStart, p.PageEnd)
	}
	return fmt.Sprintf("%d", p.PageStart)
}

func answerUserPrompt(contextBlock, question string) string {
	return "Context:\n" + contextBlock + "\n\nQuestion: " + question
}

// -------------------- Rulebook match gate --------------------

const matchSystemPrompt = `You verify whether a PDF is the official rulebook for a given board game.
Judge only from the evidence given: the game name, where the PDF came from, and an excerpt of its text.
A quick-start guide, FAQ, or rulebook for a different game or edition is not a match.
If the text names the game's publisher or designer, report it as the creator; otherwise leave creator empty.`

const matchSchemaName = "rulebook_match"

// matchSchema is the structured-output contract for the match gate. strict
// json_schema mode requires every property listed in required.
var matchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"is_match": map[string]any{
			"type":        "boolean",
			"description": "true only if the PDF is a rulebook for the named game",
		},
		"creator": map[string]any{
			"type":        "string",
			"description": "publisher or designer named in the text, empty if unknown",
		},
		"rationale": map[string]any{
			"type":        "string",
			"description": "one-sentence justification",
		},
	},
	"required":             []string{"is_match", "creator", "rationale"},
	"additionalProperties": false,
}

// matchExcerptLimit caps how much extracted text goes into the gate prompt,
// in runes so the cut never lands inside a multibyte character.
const matchExcerptLimit = 2000

func matchUserPrompt(gameName, pdfTitle, sourceURL, fullText string) string {
	excerpt := fullText
	if utf8.RuneCountInString(excerpt) > matchExcerptLimit {
		excerpt = string([]rune(excerpt)[:matchExcerptLimit])
	}
	return fmt.Sprintf(
		"Game: %s\nPDF title: %s\nSource URL: %s\n\nExtracted text begins:\n%s",
		gameName, pdfTitle, sourceURL, excerpt,
	)
}
