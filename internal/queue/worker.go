package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// Handler runs queued favorite tasks.
type Handler struct {
	favorite func(ctx context.Context, id string) error
}

func NewHandler(favorite func(ctx context.Context, id string) error) *Handler {
	return &Handler{favorite: favorite}
}

func (h *Handler) HandleFavoriteTask(ctx context.Context, task *asynq.Task) error {
	var payload FavoritePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode favorite payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TweetID == "" {
		return fmt.Errorf("favorite payload without tweet id: %w", asynq.SkipRetry)
	}

	err := h.favorite(ctx, payload.TweetID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, twitter.ErrMockDisabled):
		logrus.Warnf("Dropping queued favorite of %s: %v", payload.TweetID, err)
		return nil
	default:
		logrus.WithError(err).Warnf("Queued favorite of %s failed", payload.TweetID)
		return err
	}
}

// Worker consumes the favorite queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redis asynq.RedisConnOpt, handler *Handler, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Logger:      logrus.StandardLogger(),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeFavoriteTweet, handler.HandleFavoriteTask)
	return &Worker{server: server, mux: mux}
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	logrus.Info("Starting the favorite queue worker")
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
