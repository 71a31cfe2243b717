package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/campusrag/campusrag/pkg/metrics"
	"github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// Replies sent when no answer could be produced.
const (
	EmptyMessageReply = "Please send a message with your question about ASU."
	TimeoutReply      = "I'm processing a lot of requests right now. Please try asking a more specific question or try again in a moment."
	ErrorReply        = "I'm experiencing technical difficulties. Please try again in a few minutes or contact ASU directly for immediate assistance."
	NoAnswerReply     = "Sorry, I could not find relevant information."
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string, topK int) (*types.PipelineResult, rag.Outcome, error)
}

// Handler answers inbound messages.
type Handler struct {
	asker Asker
	topK  int
}

func NewHandler(asker Asker, topK int) *Handler {
	return &Handler{asker: asker, topK: topK}
}

// Reply returns the text to send back for an inbound message. It always
// returns some text.
func (h *Handler) Reply(ctx context.Context, body, from string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		xlog.Warn("Empty message received", "from", from)
		return EmptyMessageReply
	}

	xlog.Info("Message received", "from", from, "body", body)

	if reply, ok := QuickReply(body); ok {
		xlog.Info("Using quick response", "from", from)
		metrics.Get().QuickReplies.Inc()
		return reply
	}

	start := time.Now()
	result, outcome, err := h.asker.Ask(ctx, body, h.topK)
	switch {
	case err != nil:
		xlog.Error("Error handling message", "from", from, "error", err)
		return ErrorReply
	case outcome == rag.OutcomeTimedOut:
		return TimeoutReply
	case result == nil || strings.TrimSpace(result.Answer) == "":
		return NoAnswerReply
	}

	xlog.Info("Message answered", "from", from, "outcome", outcome, "duration", time.Since(start))
	return result.Answer
}
