package twitter

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

//go:embed fixtures/*.json
var fixtureFS embed.FS

// FixtureProvider serves canned tweets for mock mode. It never contacts the
// platform; write operations are refused.
type FixtureProvider struct {
	following   []RawPost
	recommended []RawPost
	search      []RawPost
}

func NewFixtureProvider() (*FixtureProvider, error) {
	load := func(name string) ([]RawPost, error) {
		data, err := fixtureFS.ReadFile("fixtures/" + name)
		if err != nil {
			return nil, err
		}
		posts, err := ParseRawPosts(data)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", name, err)
		}
		return posts, nil
	}

	var (
		p   FixtureProvider
		err error
	)
	if p.following, err = load("following.json"); err != nil {
		return nil, err
	}
	if p.recommended, err = load("recommended.json"); err != nil {
		return nil, err
	}
	if p.search, err = load("search.json"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (f *FixtureProvider) GetCookies() []*http.Cookie { return nil }

func (f *FixtureProvider) SetCookies([]*http.Cookie) {}

func (f *FixtureProvider) IsLoggedIn(context.Context) bool { return true }

func (f *FixtureProvider) Login(context.Context, Credentials) error { return nil }

func (f *FixtureProvider) SearchTweets(_ context.Context, query string, count int, cursor string) (Page, error) {
	if cursor != "" {
		return Page{}, nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var matched []RawPost
	for _, p := range f.search {
		text, _ := p.Text()
		if q == "" || strings.Contains(strings.ToLower(text), q) {
			matched = append(matched, p)
		}
	}
	return Page{Posts: limit(matched, count)}, nil
}

func (f *FixtureProvider) FollowingTimeline(_ context.Context, count int, cursor string) (Page, error) {
	if cursor != "" {
		return Page{}, nil
	}
	return Page{Posts: limit(f.following, count)}, nil
}

func (f *FixtureProvider) RecommendedTimeline(_ context.Context, count int, cursor string) (Page, error) {
	if cursor != "" {
		return Page{}, nil
	}
	return Page{Posts: limit(f.recommended, count)}, nil
}

func (f *FixtureProvider) GetTweet(_ context.Context, id string) (RawPost, error) {
	for _, p := range f.all() {
		if p.PostID() == id {
			return p, nil
		}
	}
	return nil, &ProviderError{Condition: ConditionNotFound, Message: "tweet " + id + " not found"}
}

func (f *FixtureProvider) GetTweetReplies(_ context.Context, id string, cursor string) (Page, error) {
	if cursor != "" {
		return Page{}, nil
	}
	var replies []RawPost
	for _, p := range f.all() {
		if ref, ok := p.ReplyTo(); ok && ref.StatusID == id {
			replies = append(replies, p)
		}
	}
	return Page{Posts: replies}, nil
}

func (f *FixtureProvider) CreateTweet(context.Context, string, string) (RawPost, error) {
	return nil, ErrMockDisabled
}

func (f *FixtureProvider) FavoriteTweet(context.Context, string) error {
	return ErrMockDisabled
}

func (f *FixtureProvider) all() []RawPost {
	all := make([]RawPost, 0, len(f.following)+len(f.recommended)+len(f.search))
	all = append(all, f.following...)
	all = append(all, f.recommended...)
	return append(all, f.search...)
}

func limit(posts []RawPost, n int) []RawPost {
	if n > 0 && len(posts) > n {
		return posts[:n]
	}
	return posts
}

// ParseRawPosts decodes tweets in the platform's legacy JSON shape.
func ParseRawPosts(data []byte) ([]RawPost, error) {
	var tweets []*legacyTweet
	if err := json.Unmarshal(data, &tweets); err != nil {
		return nil, err
	}
	posts := make([]RawPost, 0, len(tweets))
	for _, t := range tweets {
		posts = append(posts, t)
	}
	return posts, nil
}

type legacyTweet struct {
	IDStr             string       `json:"id_str"`
	FullText          *string      `json:"full_text"`
	CreatedAtStr      *string      `json:"created_at"`
	LangStr           *string      `json:"lang"`
	Retweets          *int         `json:"retweet_count"`
	Favorites         *int         `json:"favorite_count"`
	Views             *int         `json:"view_count"`
	User              *legacyUser  `json:"user"`
	InReplyToStatusID string       `json:"in_reply_to_status_id_str"`
	InReplyToUserID   string       `json:"in_reply_to_user_id_str"`
	InReplyToName     string       `json:"in_reply_to_screen_name"`
	ExtendedEntities  *legacyMedia `json:"extended_entities"`
}

type legacyUser struct {
	IDStr           string `json:"id_str"`
	Name            string `json:"name"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url_https"`
}

type legacyMedia struct {
	Media []struct {
		Type         string `json:"type"`
		MediaURL     string `json:"media_url_https"`
		Availability *struct {
			Status string `json:"status"`
		} `json:"ext_media_availability"`
	} `json:"media"`
}

func (t *legacyTweet) PostID() string { return t.IDStr }

func (t *legacyTweet) Text() (string, bool) { return deref(t.FullText) }

func (t *legacyTweet) CreatedAt() (string, bool) { return deref(t.CreatedAtStr) }

func (t *legacyTweet) Lang() (string, bool) { return deref(t.LangStr) }

func (t *legacyTweet) RetweetCount() (int, bool) { return deref(t.Retweets) }

func (t *legacyTweet) FavoriteCount() (int, bool) { return deref(t.Favorites) }

func (t *legacyTweet) ViewCount() (int, bool) { return deref(t.Views) }

func (t *legacyTweet) Author() (RawAuthor, bool) {
	if t.User == nil {
		return RawAuthor{}, false
	}
	return RawAuthor{
		ID:              t.User.IDStr,
		Name:            t.User.Name,
		Handle:          t.User.ScreenName,
		ProfileImageURL: t.User.ProfileImageURL,
	}, true
}

func (t *legacyTweet) Media() []RawMedia {
	if t.ExtendedEntities == nil {
		return nil
	}
	media := make([]RawMedia, 0, len(t.ExtendedEntities.Media))
	for _, m := range t.ExtendedEntities.Media {
		rm := RawMedia{Type: m.Type, URL: m.MediaURL}
		if m.Availability != nil {
			rm.Availability = m.Availability.Status
		}
		media = append(media, rm)
	}
	return media
}

func (t *legacyTweet) ReplyTo() (ReplyRef, bool) {
	if t.InReplyToStatusID == "" {
		return ReplyRef{}, false
	}
	return ReplyRef{StatusID: t.InReplyToStatusID, UserID: t.InReplyToUserID, ScreenName: t.InReplyToName}, true
}

func deref[T any](v *T) (T, bool) {
	if v == nil {
		var zero T
		return zero, false
	}
	return *v, true
}
