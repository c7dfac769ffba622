// Package notify announces finished index builds on Kafka.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

const (
	EventBuildCompleted = "index.build.completed"
	EventBuildFailed    = "index.build.failed"
)

// BuildCompleted is the payload published after every build.
type BuildCompleted struct {
	EventType     string    `json:"event_type"`
	RunID         string    `json:"run_id"`
	IndexDir      string    `json:"index_dir"`
	Sources       []string  `json:"sources"`
	Discovered    int       `json:"discovered"`
	Indexed       int64     `json:"indexed"`
	Postings      int64     `json:"postings"`
	WriteFailures int64     `json:"write_failures"`
	ReadFailures  int64     `json:"read_failures"`
	Keys          int       `json:"keys"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier is an indexer.BuildObserver.
type Notifier struct {
	publisher EventPublisher
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

func New(publisher EventPublisher, retry resilience.RetryConfig) *Notifier {
	return &Notifier{
		publisher: publisher,
		retry:     retry,
		logger:    slog.Default().With("component", "build-notifier"),
	}
}

func NewEvent(result *indexer.BuildResult, buildErr error) BuildCompleted {
	ev := BuildCompleted{
		EventType:     EventBuildCompleted,
		RunID:         result.RunID,
		IndexDir:      result.IndexDir,
		Sources:       result.Sources,
		Discovered:    result.Discovered,
		Indexed:       result.Indexed,
		Postings:      result.Postings,
		WriteFailures: result.WriteFailures,
		ReadFailures:  result.ReadFailures,
		Keys:          result.Keys,
		DurationMs:    result.Duration.Milliseconds(),
		Timestamp:     time.Now().UTC(),
	}
	if buildErr != nil {
		ev.EventType = EventBuildFailed
		ev.Error = buildErr.Error()
	}
	return ev
}

func (n *Notifier) BuildFinished(ctx context.Context, result *indexer.BuildResult, buildErr error) error {
	if result == nil {
		return nil
	}
	ev := NewEvent(result, buildErr)
	err := resilience.Retry(ctx, "publish build event", n.retry, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, kafka.Event{Key: result.IndexDir, Value: ev})
	})
	if err != nil {
		return err
	}
	n.logger.Info("build event published", "run_id", ev.RunID, "event_type", ev.EventType)
	return nil
}
