// Package twittertest provides a scriptable twitter.Provider for tests.
package twittertest

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// Provider records every call and delegates to the optional Func fields.
// Unset funcs succeed with empty results.
type Provider struct {
	IsLoggedInFunc  func() bool
	LoginFunc       func(creds twitter.Credentials) error
	SearchFunc      func(query string, count int, cursor string) (twitter.Page, error)
	FollowingFunc   func(count int, cursor string) (twitter.Page, error)
	RecommendedFunc func(count int, cursor string) (twitter.Page, error)
	GetTweetFunc    func(id string) (twitter.RawPost, error)
	RepliesFunc     func(id string, cursor string) (twitter.Page, error)
	CreateFunc      func(text, replyTo string) (twitter.RawPost, error)
	FavoriteFunc    func(id string) error

	mu      sync.Mutex
	calls   map[string]int
	cookies []*http.Cookie
}

func (p *Provider) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[name]++
}

// Calls returns how many times the named method ran.
func (p *Provider) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *Provider) GetCookies() []*http.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cookies == nil {
		return []*http.Cookie{{Name: "auth_token", Value: "test"}}
	}
	return p.cookies
}

func (p *Provider) SetCookies(cookies []*http.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = cookies
}

func (p *Provider) IsLoggedIn(context.Context) bool {
	p.record("IsLoggedIn")
	if p.IsLoggedInFunc == nil {
		return false
	}
	return p.IsLoggedInFunc()
}

func (p *Provider) Login(_ context.Context, creds twitter.Credentials) error {
	p.record("Login")
	if p.LoginFunc == nil {
		return nil
	}
	return p.LoginFunc(creds)
}

func (p *Provider) SearchTweets(_ context.Context, query string, count int, cursor string) (twitter.Page, error) {
	p.record("SearchTweets")
	if p.SearchFunc == nil {
		return twitter.Page{}, nil
	}
	return p.SearchFunc(query, count, cursor)
}

func (p *Provider) FollowingTimeline(_ context.Context, count int, cursor string) (twitter.Page, error) {
	p.record("FollowingTimeline")
	if p.FollowingFunc == nil {
		return twitter.Page{}, nil
	}
	return p.FollowingFunc(count, cursor)
}

func (p *Provider) RecommendedTimeline(_ context.Context, count int, cursor string) (twitter.Page, error) {
	p.record("RecommendedTimeline")
	if p.RecommendedFunc == nil {
		return twitter.Page{}, nil
	}
	return p.RecommendedFunc(count, cursor)
}

func (p *Provider) GetTweet(_ context.Context, id string) (twitter.RawPost, error) {
	p.record("GetTweet")
	if p.GetTweetFunc == nil {
		return NewPost(id, 0), nil
	}
	return p.GetTweetFunc(id)
}

func (p *Provider) GetTweetReplies(_ context.Context, id string, cursor string) (twitter.Page, error) {
	p.record("GetTweetReplies")
	if p.RepliesFunc == nil {
		return twitter.Page{}, nil
	}
	return p.RepliesFunc(id, cursor)
}

func (p *Provider) CreateTweet(_ context.Context, text, replyTo string) (twitter.RawPost, error) {
	p.record("CreateTweet")
	if p.CreateFunc == nil {
		post := NewPost("9000", 0)
		post.Body = text
		if replyTo != "" {
			post.Reply = &twitter.ReplyRef{StatusID: replyTo}
		}
		return post, nil
	}
	return p.CreateFunc(text, replyTo)
}

func (p *Provider) FavoriteTweet(_ context.Context, id string) error {
	p.record("FavoriteTweet")
	if p.FavoriteFunc == nil {
		return nil
	}
	return p.FavoriteFunc(id)
}

// Post is a plain RawPost. Nil pointer fields read as absent.
type Post struct {
	ID        string
	Body      string
	Created   string
	Language  string
	Retweets  int
	Favorites int
	Views     *int
	Writer    *twitter.RawAuthor
	Photos    []twitter.RawMedia
	Reply     *twitter.ReplyRef
}

// NewPost returns an attributed post with the given favorite count.
func NewPost(id string, favorites int) *Post {
	return &Post{
		ID:        id,
		Body:      "post " + id,
		Created:   "Tue Oct 22 14:03:11 +0000 2024",
		Language:  "en",
		Favorites: favorites,
		Writer:    &twitter.RawAuthor{ID: "u" + id, Name: "Author " + id, Handle: "author" + id},
	}
}

// Posts builds one attributed post per favorite count, with ids starting at first.
func Posts(first int, favorites ...int) []twitter.RawPost {
	posts := make([]twitter.RawPost, 0, len(favorites))
	for i, f := range favorites {
		posts = append(posts, NewPost(strconv.Itoa(first+i), f))
	}
	return posts
}

func (p *Post) PostID() string { return p.ID }

func (p *Post) Text() (string, bool) { return p.Body, p.Body != "" }

func (p *Post) CreatedAt() (string, bool) { return p.Created, p.Created != "" }

func (p *Post) Lang() (string, bool) { return p.Language, p.Language != "" }

func (p *Post) RetweetCount() (int, bool) { return p.Retweets, true }

func (p *Post) FavoriteCount() (int, bool) { return p.Favorites, true }

func (p *Post) ViewCount() (int, bool) {
	if p.Views == nil {
		return 0, false
	}
	return *p.Views, true
}

func (p *Post) Author() (twitter.RawAuthor, bool) {
	if p.Writer == nil {
		return twitter.RawAuthor{}, false
	}
	return *p.Writer, true
}

func (p *Post) Media() []twitter.RawMedia { return p.Photos }

func (p *Post) ReplyTo() (twitter.ReplyRef, bool) {
	if p.Reply == nil {
		return twitter.ReplyRef{}, false
	}
	return *p.Reply, true
}
