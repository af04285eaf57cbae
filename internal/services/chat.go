package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/openai"
	"github.com/tablemind/rulebook-backend/internal/rag/reranker"
	"github.com/tablemind/rulebook-backend/internal/rag/retriever"
	"github.com/tablemind/rulebook-backend/internal/rag/rewriter"
)

// Source is the provenance of one passage that backed an answer.
type Source struct {
	GameTitle string  `json:"game_title"`
	PageStart int     `json:"page_start"`
	PageEnd   int     `json:"page_end"`
	Section   string  `json:"section,omitempty"`
	Score     float64 `json:"score"`
}

type ChatResult struct {
	Answer string `json:"answer"`
	// Query is the standalone retrieval query the message was rewritten to.
	Query   string   `json:"query"`
	Sources []Source `json:"sources"`
}

type ChatService interface {
	// Chat answers one question within a session: rewrite against history,
	// retrieve, rerank, synthesize, then record both turns. Calls for the
	// same session are serialized so history stays an alternating
	// user/assistant transcript.
	Chat(ctx context.Context, sessionID, message string) (*ChatResult, error)
}

// sessionLockCount sizes the striped session lock pool. A collision only
// serializes two unrelated sessions for one request; the pool itself stays
// fixed no matter how many sessions come and go.
const sessionLockCount = 64

type chatService struct {
	client    openai.Client
	rewriter  *rewriter.Rewriter
	retriever *retriever.Retriever
	reranker  *reranker.Reranker
	history   HistoryStore
	log       *logger.Logger

	sessionLocks [sessionLockCount]sync.Mutex
}

func NewChatService(
	client openai.Client,
	rw *rewriter.Rewriter,
	rt *retriever.Retriever,
	rr *reranker.Reranker,
	history HistoryStore,
	baseLog *logger.Logger,
) ChatService {
	return &chatService{
		client:    client,
		rewriter:  rw,
		retriever: rt,
		reranker:  rr,
		history:   history,
		log:       baseLog.With("service", "ChatService"),
	}
}

func (s *chatService) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.sessionLocks[h.Sum32()%sessionLockCount]
}

func (s *chatService) Chat(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if message == "" {
		return nil, fmt.Errorf("message required")
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.history.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	query, err := s.rewriter.Rewrite(ctx, history, message)
	if err != nil {
		return nil, err
	}

	candidates, err := s.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		return nil, err
	}

	passages, err := s.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	answer, err := s.synthesize(ctx, query, passages)
	if errors.Is(err, domain.ErrAnswerUnavailable) {
		answer = unansweredReply
	} else if err != nil {
		return nil, err
	}

	if err := s.history.Append(ctx, sessionID,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: answer},
	); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	s.log.Info("Chat answered",
		"session_id", sessionID,
		"passages", len(passages),
		"rewritten", query != message,
	)

	return &ChatResult{
		Answer:  answer,
		Query:   query,
		Sources: toSources(passages),
	}, nil
}

// synthesize generates the grounded answer. With no passages there is
// nothing to ground on, so it reports domain.ErrAnswerUnavailable instead
// of letting the model freewheel.
func (s *chatService) synthesize(ctx context.Context, query string, passages []retriever.Passage) (string, error) {
	if len(passages) == 0 {
		return "", domain.ErrAnswerUnavailable
	}

	answer, err := s.client.GenerateText(ctx, answerSystemPrompt, answerUserPrompt(formatContext(passages), query))
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func toSources(passages []retriever.Passage) []Source {
	out := make([]Source, 0, len(passages))
	for _, p := range passages {
		src := Source{
			GameTitle: p.DocTitle,
			PageStart: p.PageStart,
			PageEnd:   p.PageEnd,
			Score:     p.Score,
		}
		if p.SectionPath != nil {
			src.Section = *p.SectionPath
		}
		out = append(out, src)
	}
	return out
}
