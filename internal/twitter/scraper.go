package twitter

import (
	"context"
	"net/http"
	"sync"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
)

// ScraperProvider adapts the twitter-scraper client to Provider. The
// underlying client is not safe for concurrent use.
type ScraperProvider struct {
	mu     sync.Mutex
	client *twitterscraper.Scraper
}

func NewScraperProvider() *ScraperProvider {
	client := twitterscraper.New()
	client.SetSearchMode(twitterscraper.SearchLatest)
	return &ScraperProvider{client: client}
}

func (s *ScraperProvider) GetCookies() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.GetCookies()
}

func (s *ScraperProvider) SetCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.SetCookies(cookies)
}

func (s *ScraperProvider) IsLoggedIn(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.IsLoggedIn()
}

func (s *ScraperProvider) Login(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if creds.Email != "" {
		return s.client.Login(creds.Username, creds.Password, creds.Email)
	}
	return s.client.Login(creds.Username, creds.Password)
}

func (s *ScraperProvider) SearchTweets(ctx context.Context, query string, count int, cursor string) (Page, error) {
	return s.fetch(ctx, func() ([]*twitterscraper.Tweet, string, error) {
		return s.client.FetchSearchTweets(query, count, cursor)
	})
}

func (s *ScraperProvider) FollowingTimeline(ctx context.Context, count int, cursor string) (Page, error) {
	return s.fetch(ctx, func() ([]*twitterscraper.Tweet, string, error) {
		return s.client.FetchHomeTweets(count, cursor)
	})
}

func (s *ScraperProvider) RecommendedTimeline(ctx context.Context, count int, cursor string) (Page, error) {
	return s.fetch(ctx, func() ([]*twitterscraper.Tweet, string, error) {
		return s.client.FetchForYouTweets(count, cursor)
	})
}

func (s *ScraperProvider) GetTweet(ctx context.Context, id string) (RawPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, err := s.client.GetTweet(id)
	if err != nil {
		return nil, err
	}
	if tweet == nil {
		return nil, &ProviderError{Condition: ConditionNotFound, Message: "tweet " + id + " not found"}
	}
	return scraperTweet{tweet}, nil
}

func (s *ScraperProvider) GetTweetReplies(ctx context.Context, id string, cursor string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tweets, cursors, err := s.client.GetTweetReplies(id, cursor)
	if err != nil {
		return Page{}, err
	}
	page := Page{Posts: wrapTweets(tweets)}
	if n := len(cursors); n > 0 && cursors[n-1] != nil {
		page.NextCursor = cursors[n-1].Cursor
	}
	return page, nil
}

// CreateTweet posts text as a new tweet. The scraper has no reply
// parameter, so replies are rejected as a client error.
func (s *ScraperProvider) CreateTweet(ctx context.Context, text string, replyTo string) (RawPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if replyTo != "" {
		return nil, &ProviderError{Condition: ConditionBadRequest, Message: "replying is not supported by the scraper client"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, err := s.client.CreateTweet(twitterscraper.NewTweet{Text: text})
	if err != nil {
		return nil, err
	}
	return scraperTweet{tweet}, nil
}

func (s *ScraperProvider) FavoriteTweet(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.LikeTweet(id)
}

func (s *ScraperProvider) fetch(ctx context.Context, call func() ([]*twitterscraper.Tweet, string, error)) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tweets, next, err := call()
	if err != nil {
		return Page{}, err
	}
	return Page{Posts: wrapTweets(tweets), NextCursor: next}, nil
}

func wrapTweets(tweets []*twitterscraper.Tweet) []RawPost {
	posts := make([]RawPost, 0, len(tweets))
	for _, t := range tweets {
		if t != nil {
			posts = append(posts, scraperTweet{t})
		}
	}
	return posts
}

// scraperTweet exposes a scraped tweet as a RawPost. The scraper only
// returns photos that are available, and never reports a language.
type scraperTweet struct {
	t *twitterscraper.Tweet
}

func (w scraperTweet) PostID() string { return w.t.ID }

func (w scraperTweet) Text() (string, bool) { return w.t.Text, true }

func (w scraperTweet) CreatedAt() (string, bool) {
	if w.t.Timestamp == 0 {
		return "", false
	}
	return time.Unix(w.t.Timestamp, 0).UTC().Format(time.RubyDate), true
}

func (w scraperTweet) Lang() (string, bool) { return "", false }

func (w scraperTweet) RetweetCount() (int, bool) { return w.t.Retweets, true }

func (w scraperTweet) FavoriteCount() (int, bool) { return w.t.Likes, true }

func (w scraperTweet) ViewCount() (int, bool) { return w.t.Views, w.t.Views > 0 }

func (w scraperTweet) Author() (RawAuthor, bool) {
	if w.t.UserID == "" && w.t.Username == "" {
		return RawAuthor{}, false
	}
	return RawAuthor{ID: w.t.UserID, Name: w.t.Name, Handle: w.t.Username}, true
}

func (w scraperTweet) Media() []RawMedia {
	media := make([]RawMedia, 0, len(w.t.Photos)+len(w.t.Videos))
	for _, p := range w.t.Photos {
		media = append(media, RawMedia{Type: MediaTypePhoto, URL: p.URL, Availability: MediaStatusAvailable})
	}
	for _, v := range w.t.Videos {
		media = append(media, RawMedia{Type: "video", URL: v.URL, Availability: MediaStatusAvailable})
	}
	return media
}

func (w scraperTweet) ReplyTo() (ReplyRef, bool) {
	if !w.t.IsReply && w.t.InReplyToStatusID == "" {
		return ReplyRef{}, false
	}
	ref := ReplyRef{StatusID: w.t.InReplyToStatusID}
	if parent := w.t.InReplyToStatus; parent != nil {
		ref.UserID = parent.UserID
		ref.ScreenName = parent.Username
	}
	return ref, true
}
