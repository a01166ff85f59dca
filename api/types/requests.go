package types

import "time"

const DefaultMinimumTweets = 10

type SearchRequest struct {
	Query         string `json:"query"`
	MinimumTweets int    `json:"minimum_tweets"`
}

type TimelineRequest struct {
	MinimumTweets int `json:"minimum_tweets"`
}

type CreatePostRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type SchedulerRequest struct {
	MinimumTweets int `json:"minimum_tweets"`
}

// StatusResponse mirrors the {"status", "message"} envelope used by the
// scheduler and favorite endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TweetID string `json:"tweet_id,omitempty"`
}

type SchedulerStatus struct {
	Running       bool       `json:"running"`
	MinimumTweets int        `json:"minimum_tweets"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Cycles        uint64     `json:"cycles"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type PostsResponse struct {
	Count int    `json:"count"`
	Posts []Post `json:"posts"`
}

type NotificationAuthor struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type NotificationMetrics struct {
	Replies  string `json:"replies"`
	Retweets string `json:"retweets"`
	Likes    string `json:"likes"`
}

type NotificationMedia struct {
	HasImages bool `json:"has_images"`
	HasVideo  bool `json:"has_video"`
}

// NotificationPayload is pushed by the browser extension when a tweet shows
// up in the account's notifications.
type NotificationPayload struct {
	ID          string              `json:"id"`
	Text        string              `json:"text"`
	Author      NotificationAuthor  `json:"author"`
	Metrics     NotificationMetrics `json:"metrics"`
	Media       NotificationMedia   `json:"media"`
	IsReply     bool                `json:"is_reply"`
	Lang        string              `json:"lang"`
	CreatedAt   time.Time           `json:"created_at"`
	URL         string              `json:"url"`
	Timestamp   time.Time           `json:"timestamp"`
	TestMode    bool                `json:"test_mode"`
	Reprocessed bool                `json:"reprocessed"`
}

type NotificationResponse struct {
	Status       string       `json:"status"`
	Message      string       `json:"message"`
	TweetID      string       `json:"tweet_id,omitempty"`
	TweetDetails *PostDetails `json:"tweet_details,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
