package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const TaskTypeFavoriteTweet = "favorite:tweet"

type FavoritePayload struct {
	TweetID string `json:"tweet_id"`
}

// ParseRedis accepts either a redis:// URI or a bare host:port.
func ParseRedis(uri string) (asynq.RedisConnOpt, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("redis address is required")
	}
	if strings.Contains(uri, "://") {
		return asynq.ParseRedisURI(uri)
	}
	return asynq.RedisClientOpt{Addr: uri}, nil
}

func NewFavoriteTask(tweetID string) (*asynq.Task, error) {
	payload, err := json.Marshal(FavoritePayload{TweetID: tweetID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFavoriteTweet, payload), nil
}

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher defers favorites to a redis-backed queue instead of
// holding the caller for the jitter delay.
type AsynqDispatcher struct {
	client Enqueuer
}

func NewAsynqDispatcher(client Enqueuer) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// Dispatch schedules the favorite to run after delay. A favorite already
// pending for the same tweet is not enqueued twice.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, id string, delay time.Duration) error {
	task, err := NewFavoriteTask(id)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.TaskID(TaskTypeFavoriteTweet+":"+id),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.Debugf("Favorite of tweet %s already queued", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue favorite of %s: %w", id, err)
	}

	logrus.WithFields(logrus.Fields{
		"task":  info.ID,
		"tweet": id,
		"in":    delay,
	}).Info("Favorite scheduled")
	return nil
}
