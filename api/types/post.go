package types

import "time"

// Post is the canonical, persisted form of a fetched tweet.
type Post struct {
	ID            string     `json:"id"`
	AuthorName    string     `json:"author_name"`
	AuthorHandle  string     `json:"author_handle"`
	Text          string     `json:"text"`
	CreatedAt     string     `json:"created_at"`
	RetweetCount  int        `json:"retweet_count"`
	FavoriteCount int        `json:"favorite_count"`
	PhotoURLs     []string   `json:"photo_urls"`
	Lang          string     `json:"lang"`
	ViewCount     int        `json:"view_count"`
	FirstSeenAt   time.Time  `json:"first_seen_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	IsLiked       bool       `json:"is_liked"`
}

// PostUpdate carries the mutable fields written on the update path.
// FirstSeenAt and IsLiked are deliberately absent.
type PostUpdate struct {
	Text          string    `json:"text"`
	RetweetCount  int       `json:"retweet_count"`
	FavoriteCount int       `json:"favorite_count"`
	PhotoURLs     []string  `json:"photo_urls"`
	Lang          string    `json:"lang"`
	ViewCount     int       `json:"view_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UpdateOf extracts the update payload for p, stamped with now.
func UpdateOf(p Post, now time.Time) PostUpdate {
	return PostUpdate{
		Text:          p.Text,
		RetweetCount:  p.RetweetCount,
		FavoriteCount: p.FavoriteCount,
		PhotoURLs:     p.PhotoURLs,
		Lang:          p.Lang,
		ViewCount:     p.ViewCount,
		UpdatedAt:     now,
	}
}

type Author struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// PostDetails is the reply-context view of a tweet, used by threads,
// notifications and created tweets.
type PostDetails struct {
	ID                  string   `json:"id"`
	Text                string   `json:"text"`
	DisplayText         string   `json:"display_text"`
	CreatedAt           string   `json:"created_at"`
	Lang                string   `json:"lang"`
	RetweetCount        int      `json:"retweet_count"`
	FavoriteCount       int      `json:"favorite_count"`
	Author              Author   `json:"author"`
	InReplyToStatusID   string   `json:"in_reply_to_status_id,omitempty"`
	InReplyToUserID     string   `json:"in_reply_to_user_id,omitempty"`
	InReplyToScreenName string   `json:"in_reply_to_screen_name,omitempty"`
	PhotoURLs           []string `json:"photo_urls"`
}

type Thread struct {
	MainTweet PostDetails   `json:"main_tweet"`
	Replies   []PostDetails `json:"replies"`
}
