package model

import (
	"strings"

	json "github.com/goccy/go-json"
)

// RetweetMarker prefixes the text of old-style retweet statuses. The body
// after the marker is truncated by the API and has to be recovered from the
// original tweet.
const RetweetMarker = "RT @"

// Tweet is the canonical representation of a single status, independent of
// which API shape it was parsed from. Field names in the exported snapshot
// follow the legacy API vocabulary (user_id, favorite_count, ...).
type Tweet struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	CreatedAt           int64           `json:"created_at"`
	Text                string          `json:"text"`
	Source              string          `json:"source,omitempty"`
	RetweetCount        int             `json:"retweet_count"`
	FavoriteCount       int             `json:"favorite_count"`
	ReplyCount          int             `json:"reply_count"`
	QuoteCount          int             `json:"quote_count"`
	Favorited           bool            `json:"favorited"`
	Retweeted           bool            `json:"retweeted"`
	PossiblySensitive   bool            `json:"possibly_sensitive"`
	InReplyToStatusID   *int64          `json:"in_reply_to_status_id"`
	InReplyToUserID     *int64          `json:"in_reply_to_user_id"`
	InReplyToScreenName *string         `json:"in_reply_to_screen_name"`
	IsQuoteStatus       bool            `json:"is_quote_status"`
	QuotedStatusID      *int64          `json:"quoted_status_id"`
	QuotedStatus        *Tweet          `json:"quoted_status,omitempty"`
	RetweetedStatusID   *int64          `json:"retweeted_status_id"`
	RetweetedStatus     *Tweet          `json:"retweeted_status,omitempty"`
	SelfThreadID        *int64          `json:"self_thread_id"`
	ConversationID      *int64          `json:"conversation_id"`
	Media               []Media         `json:"media"`
	Place               json.RawMessage `json:"place,omitempty"`
	Coordinates         json.RawMessage `json:"coordinates,omitempty"`
	Geo                 json.RawMessage `json:"geo,omitempty"`
}

// MarshalJSON keeps the media field an array even for tweets without
// attachments; the snapshot schema has no "media": null.
func (t *Tweet) MarshalJSON() ([]byte, error) {
	type tweet Tweet
	out := tweet(*t)
	if out.Media == nil {
		out.Media = []Media{}
	}
	return json.Marshal(out)
}

// IsRetweetText reports whether the tweet text starts with the old-style
// retweet marker.
func (t *Tweet) IsRetweetText() bool {
	return strings.HasPrefix(t.Text, RetweetMarker)
}

// sortValue returns the numeric value of the given sort key.
func (t *Tweet) sortValue(key string) int64 {
	switch key {
	case "id":
		return t.ID
	case "user_id":
		return t.UserID
	case "created_at":
		return t.CreatedAt
	case "retweet_count":
		return int64(t.RetweetCount)
	case "like_count", "favorite_count":
		return int64(t.FavoriteCount)
	case "reply_count":
		return int64(t.ReplyCount)
	case "quote_count":
		return int64(t.QuoteCount)
	}
	return 0
}
