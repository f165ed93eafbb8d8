// Package qa answers questions asked in reply to a delivered article.
package qa

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Aero123421/RSS7/internal/model"
)

// Apology is returned when an answer could not be produced.
const Apology = "回答を生成できませんでした。"

// RelatedLimit caps the related snapshots given to the provider.
const RelatedLimit = 3

// ErrUnknownMessage means the message has no stored snapshot.
var ErrUnknownMessage = errors.New("no article stored for message")

// SnapshotStore looks up delivered articles.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, messageID string) (*model.Snapshot, bool)
	FindRelated(ctx context.Context, keywords []string, excludeMessageID string, limit int) []model.Snapshot
}

// Responder generates search keywords and answers.
type Responder interface {
	SearchKeywords(ctx context.Context, main model.Snapshot, question string) []string
	Answer(ctx context.Context, main model.Snapshot, related []model.Snapshot, question string) (string, error)
}

// Answerer combines the snapshot store and the provider.
type Answerer struct {
	store     SnapshotStore
	responder Responder
	log       *slog.Logger
}

// NewAnswerer creates an Answerer.
func NewAnswerer(store SnapshotStore, responder Responder, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{store: store, responder: responder, log: logger.With("component", "qa")}
}

// Answer answers question about the article delivered as messageID. Only an
// unknown message is reported as an error; every other failure yields
// Apology.
func (a *Answerer) Answer(ctx context.Context, messageID, question string) (string, error) {
	main, ok := a.store.GetSnapshot(ctx, messageID)
	if !ok {
		return "", ErrUnknownMessage
	}

	keywords := a.responder.SearchKeywords(ctx, *main, question)
	var related []model.Snapshot
	if len(keywords) > 0 {
		related = a.store.FindRelated(ctx, keywords, messageID, RelatedLimit)
	}
	a.log.Info("answering question", "message_id", messageID, "keywords", keywords, "related", len(related))

	answer, err := a.responder.Answer(ctx, *main, related, question)
	if err != nil {
		a.log.Error("answer failed", "message_id", messageID, "err", err)
		return Apology, nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Apology, nil
	}
	return answer, nil
}
