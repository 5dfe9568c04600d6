// Package publisher announces newly stored articles to downstream consumers.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// Publisher sends a payload to a named topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notifier adapts a Publisher to reconcile.Notifier.
type Notifier struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

var _ reconcile.Notifier = (*Notifier)(nil)

// NewNotifier publishes every stored article to topic.
func NewNotifier(p Publisher, topic string, logger *zap.Logger) (*Notifier, error) {
	if p == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: p, topic: topic, logger: logger.Named("notifier")}, nil
}

// ArticleStored publishes the event as JSON.
func (n *Notifier) ArticleStored(ctx context.Context, event reconcile.ArticleEvent) error {
	id, err := n.publisher.Publish(ctx, n.topic, event)
	if err != nil {
		return fmt.Errorf("publish article %d: %w", event.ArticleID, err)
	}
	n.logger.Debug("article published",
		zap.String("run_id", event.RunID),
		zap.Int64("article_id", event.ArticleID),
		zap.String("message_id", id),
	)
	return nil
}
