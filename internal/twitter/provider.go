package twitter

import "context"

// Provider is the capability set of the social platform client. Every call
// goes through an Executor; nothing else should hold a Provider.
type Provider interface {
	CookieJar

	IsLoggedIn(ctx context.Context) bool
	Login(ctx context.Context, creds Credentials) error

	SearchTweets(ctx context.Context, query string, count int, cursor string) (Page, error)
	FollowingTimeline(ctx context.Context, count int, cursor string) (Page, error)
	RecommendedTimeline(ctx context.Context, count int, cursor string) (Page, error)
	GetTweet(ctx context.Context, id string) (RawPost, error)
	GetTweetReplies(ctx context.Context, id string, cursor string) (Page, error)
	CreateTweet(ctx context.Context, text string, replyTo string) (RawPost, error)
	FavoriteTweet(ctx context.Context, id string) error
}

// Page is one slice of a paginated listing. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Posts      []RawPost
	NextCursor string
}

// RawPost exposes a provider post through optional accessors. The boolean
// reports whether the provider supplied the field at all.
type RawPost interface {
	PostID() string
	Text() (string, bool)
	CreatedAt() (string, bool)
	Lang() (string, bool)
	RetweetCount() (int, bool)
	FavoriteCount() (int, bool)
	ViewCount() (int, bool)
	Author() (RawAuthor, bool)
	Media() []RawMedia
	ReplyTo() (ReplyRef, bool)
}

type RawAuthor struct {
	ID              string
	Name            string
	Handle          string
	ProfileImageURL string
}

const (
	MediaTypePhoto       = "photo"
	MediaStatusAvailable = "Available"
)

type RawMedia struct {
	Type         string
	URL          string
	Availability string
}

type ReplyRef struct {
	StatusID   string
	UserID     string
	ScreenName string
}
