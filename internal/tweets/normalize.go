package tweets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// ErrNormalization marks a raw post that cannot be attributed and is
// therefore unusable.
var ErrNormalization = errors.New("post cannot be normalized")

func normalizationError(id, reason string) error {
	return fmt.Errorf("%w: tweet %q %s", ErrNormalization, id, reason)
}

// Normalize maps a raw provider post to the stored schema. Missing optional
// fields take their zero value; a missing author is an error.
func Normalize(raw twitter.RawPost) (types.Post, error) {
	id := raw.PostID()
	if id == "" {
		return types.Post{}, normalizationError(id, "has no id")
	}
	author, ok := raw.Author()
	if !ok {
		return types.Post{}, normalizationError(id, "has no author")
	}

	text, _ := raw.Text()
	createdAt, _ := raw.CreatedAt()
	lang, _ := raw.Lang()
	retweets, _ := raw.RetweetCount()
	favorites, _ := raw.FavoriteCount()
	views, _ := raw.ViewCount()

	return types.Post{
		ID:            id,
		AuthorName:    author.Name,
		AuthorHandle:  author.Handle,
		Text:          text,
		CreatedAt:     createdAt,
		RetweetCount:  retweets,
		FavoriteCount: favorites,
		PhotoURLs:     PhotoURLs(raw.Media()),
		Lang:          lang,
		ViewCount:     views,
	}, nil
}

// NormalizeDetails builds the reply-context view used by threads, created
// tweets and notifications.
func NormalizeDetails(raw twitter.RawPost) (types.PostDetails, error) {
	id := raw.PostID()
	if id == "" {
		return types.PostDetails{}, normalizationError(id, "has no id")
	}
	author, ok := raw.Author()
	if !ok {
		return types.PostDetails{}, normalizationError(id, "has no author")
	}

	text, _ := raw.Text()
	createdAt, _ := raw.CreatedAt()
	lang, _ := raw.Lang()
	retweets, _ := raw.RetweetCount()
	favorites, _ := raw.FavoriteCount()

	details := types.PostDetails{
		ID:            id,
		Text:          text,
		DisplayText:   strings.TrimSpace(text),
		CreatedAt:     createdAt,
		Lang:          lang,
		RetweetCount:  retweets,
		FavoriteCount: favorites,
		Author: types.Author{
			ID:              author.ID,
			Name:            author.Name,
			Username:        author.Handle,
			ProfileImageURL: author.ProfileImageURL,
		},
		PhotoURLs: PhotoURLs(raw.Media()),
	}

	if ref, ok := raw.ReplyTo(); ok {
		details.InReplyToStatusID = ref.StatusID
		details.InReplyToUserID = ref.UserID
		details.InReplyToScreenName = ref.ScreenName
		details.DisplayText = StripLeadingMentions(text)
	}
	return details, nil
}

// PhotoURLs returns the URLs of available photos in media order. The result
// is never nil.
func PhotoURLs(media []twitter.RawMedia) []string {
	urls := []string{}
	for _, m := range media {
		if m.Type == twitter.MediaTypePhoto && m.Availability == twitter.MediaStatusAvailable && m.URL != "" {
			urls = append(urls, m.URL)
		}
	}
	return urls
}

// StripLeadingMentions drops the @handle tokens a reply starts with.
func StripLeadingMentions(text string) string {
	words := strings.Fields(text)
	i := 0
	for i < len(words) && strings.HasPrefix(words[i], "@") {
		i++
	}
	return strings.Join(words[i:], " ")
}

// NormalizeAll normalizes a page of raw posts, skipping the ones that
// cannot be attributed. The number of skipped posts is returned alongside.
func NormalizeAll(raws []twitter.RawPost) ([]types.Post, int) {
	posts := make([]types.Post, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		p, err := Normalize(raw)
		if err != nil {
			skipped++
			logrus.WithError(err).Warn("Skipping tweet")
			continue
		}
		posts = append(posts, p)
	}
	return posts, skipped
}
