package rewriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/openai"
)

const systemPrompt = `You rewrite the user's latest question about board game rules into a single standalone search query.
Use the conversation so far only to resolve pronouns and references like "it", "that piece", or "the same phase".
Do NOT invent game names, mechanics, or details that are not in the conversation.
Return only the rewritten query, with no quotes and no explanation.`

// Rewriter turns a follow-up question into a standalone retrieval query by
// resolving references against the conversation history.
type Rewriter struct {
	client openai.Client
	log    *logger.Logger
}

func New(client openai.Client, baseLog *logger.Logger) *Rewriter {
	return &Rewriter{
		client: client,
		log:    baseLog.With("service", "Rewriter"),
	}
}

// Rewrite returns the retrieval query for message. A first-turn message has
// nothing to resolve against, so it is returned as-is without an LLM call.
func (r *Rewriter) Rewrite(ctx context.Context, history []domain.Turn, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty message")
	}
	if len(history) == 0 {
		return message, nil
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nLatest question: ")
	b.WriteString(message)

	out, err := r.client.GenerateText(ctx, systemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}

	rewritten := collapse(out)
	if rewritten == "" {
		// A blank rewrite would nuke retrieval; the raw message is the safer
		// query.
		r.log.Warn("Query rewrite came back empty, using raw message")
		return message, nil
	}
	return rewritten, nil
}

// collapse flattens the model output to one line of plain text.
func collapse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.Join(strings.Fields(s), " ")
}
