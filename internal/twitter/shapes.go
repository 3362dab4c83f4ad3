package twitter

import (
	"bytes"
	"strconv"

	json "github.com/goccy/go-json"
)

// FlexID is a 64-bit tweet/user ID that decodes from either a JSON number
// (legacy endpoints) or a string (v2 and adaptive endpoints).
type FlexID int64

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = FlexID(n)
	return nil
}

func (f FlexID) Int64() int64 { return int64(f) }

// Ptr returns the ID as *int64, nil for zero.
func (f *FlexID) Ptr() *int64 {
	if f == nil || *f == 0 {
		return nil
	}
	n := int64(*f)
	return &n
}

// Status is a permissive superset of the tweet payloads returned by the
// legacy v1 endpoints, the v2 lookup and the adaptive search. Fields absent
// from a given shape simply stay zero; the normalizer applies the
// precedence rules.
type Status struct {
	ID                  FlexID            `json:"id"`
	IDStr               string            `json:"id_str"`
	Text                string            `json:"text"`
	FullText            string            `json:"full_text"`
	CreatedAt           string            `json:"created_at"`
	UserID              FlexID            `json:"user_id"`
	AuthorID            FlexID            `json:"author_id"`
	User                *Profile          `json:"user"`
	Source              string            `json:"source"`
	Entities            *Entities         `json:"entities"`
	ExtendedEntities    *Entities         `json:"extended_entities"`
	RetweetCount        *int              `json:"retweet_count"`
	FavoriteCount       *int              `json:"favorite_count"`
	ReplyCount          *int              `json:"reply_count"`
	QuoteCount          *int              `json:"quote_count"`
	PublicMetrics       *TweetMetrics     `json:"public_metrics"`
	Favorited           bool              `json:"favorited"`
	Retweeted           bool              `json:"retweeted"`
	PossiblySensitive   bool              `json:"possibly_sensitive"`
	InReplyToStatusID   FlexID            `json:"in_reply_to_status_id"`
	InReplyToUserID     FlexID            `json:"in_reply_to_user_id"`
	InReplyToScreenName *string           `json:"in_reply_to_screen_name"`
	IsQuoteStatus       bool              `json:"is_quote_status"`
	QuotedStatusID      FlexID            `json:"quoted_status_id"`
	SelfThread          *ThreadRef        `json:"self_thread"`
	ConversationID      FlexID            `json:"conversation_id"`
	ReferencedTweets    []ReferencedTweet `json:"referenced_tweets"`
	Attachments         *Attachments      `json:"attachments"`
	Place               json.RawMessage   `json:"place"`
	Coordinates         json.RawMessage   `json:"coordinates"`
	Geo                 json.RawMessage   `json:"geo"`
}

type TweetMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

type ThreadRef struct {
	ID FlexID `json:"id"`
}

type ReferencedTweet struct {
	Type string `json:"type"`
	ID   FlexID `json:"id"`
}

type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

type Entities struct {
	URLs  []URLEntity   `json:"urls"`
	Media []MediaEntity `json:"media"`
}

type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

// MediaEntity covers both the legacy entity shape (media_url_https,
// original_info, video_info) and the v2 media object (media_key, top level
// width/height/variants).
type MediaEntity struct {
	ID                FlexID          `json:"id"`
	MediaKey          string          `json:"media_key"`
	SourceUserID      FlexID          `json:"source_user_id"`
	Type              string          `json:"type"`
	URL               string          `json:"url"`
	MediaURL          string          `json:"media_url"`
	MediaURLHTTPS     string          `json:"media_url_https"`
	ExtAltText        string          `json:"ext_alt_text"`
	AltText           string          `json:"alt_text"`
	PossiblySensitive *bool           `json:"possibly_sensitive"`
	Width             int             `json:"width"`
	Height            int             `json:"height"`
	OriginalInfo      *OriginalInfo   `json:"original_info"`
	VideoInfo         *VideoInfo      `json:"video_info"`
	Variants          []MediaVariant  `json:"variants"`
	PreviewImageURL   string          `json:"preview_image_url"`
}

type OriginalInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type VideoInfo struct {
	Variants []MediaVariant `json:"variants"`
}

type MediaVariant struct {
	Bitrate     int    `json:"bitrate,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Profile is the permissive superset of user payloads across endpoints.
type Profile struct {
	ID                   FlexID           `json:"id"`
	ScreenName           string           `json:"screen_name"`
	Username             string           `json:"username"`
	Name                 string           `json:"name"`
	Description          string           `json:"description"`
	Location             string           `json:"location"`
	URL                  string           `json:"url"`
	Entities             *ProfileEntities `json:"entities"`
	FollowersCount       *int             `json:"followers_count"`
	FriendsCount         *int             `json:"friends_count"`
	StatusesCount        *int             `json:"statuses_count"`
	FavouritesCount      *int             `json:"favourites_count"`
	PublicMetrics        *UserMetrics     `json:"public_metrics"`
	CreatedAt            string           `json:"created_at"`
	Protected            bool             `json:"protected"`
	Verified             bool             `json:"verified"`
	Muting               bool             `json:"muting"`
	Blocking             bool             `json:"blocking"`
	BlockedBy            bool             `json:"blocked_by"`
	ExtHasNFTAvatar      bool             `json:"ext_has_nft_avatar"`
	ExtIsBlueVerified    bool             `json:"ext_is_blue_verified"`
	ProfileImageURL      string           `json:"profile_image_url"`
	ProfileImageURLHTTPS string           `json:"profile_image_url_https"`
	ProfileBannerURL     string           `json:"profile_banner_url"`
}

type ProfileEntities struct {
	Description URLList `json:"description"`
	URL         URLList `json:"url"`
}

type URLList struct {
	URLs []URLEntity `json:"urls"`
}

type UserMetrics struct {
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	TweetCount     int `json:"tweet_count"`
	ListedCount    int `json:"listed_count"`
}

// V2Response is the envelope of the v2 batch lookup.
type V2Response struct {
	Data     []Status    `json:"data"`
	Includes *V2Includes `json:"includes"`
	Errors   []V2Error   `json:"errors"`
}

type V2Includes struct {
	Media  []MediaEntity `json:"media"`
	Users  []Profile     `json:"users"`
	Tweets []Status      `json:"tweets"`
}

type V2Error struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Value  string `json:"value"`
}

// SearchResponse is the envelope of the legacy v1 search.
type SearchResponse struct {
	Statuses       []Status        `json:"statuses"`
	SearchMetadata *SearchMetadata `json:"search_metadata"`
}

type SearchMetadata struct {
	MaxIDStr    string `json:"max_id_str"`
	NextResults string `json:"next_results"`
}

// AdaptiveResponse is the envelope of the adaptive web search: a page of
// tweets/users in globalObjects plus timeline instructions carrying the
// entry order and the continuation cursor.
type AdaptiveResponse struct {
	GlobalObjects AdaptiveGlobalObjects `json:"globalObjects"`
	Timeline      AdaptiveTimeline      `json:"timeline"`
}

type AdaptiveGlobalObjects struct {
	Tweets map[string]Status  `json:"tweets"`
	Users  map[string]Profile `json:"users"`
}

type AdaptiveTimeline struct {
	Instructions []AdaptiveInstruction `json:"instructions"`
}

type AdaptiveInstruction struct {
	AddEntries   *AdaptiveAddEntries   `json:"addEntries"`
	ReplaceEntry *AdaptiveReplaceEntry `json:"replaceEntry"`
}

type AdaptiveAddEntries struct {
	Entries []AdaptiveEntry `json:"entries"`
}

type AdaptiveReplaceEntry struct {
	EntryIDToReplace string         `json:"entryIdToReplace"`
	Entry            *AdaptiveEntry `json:"entry"`
}

type AdaptiveEntry struct {
	EntryID string               `json:"entryId"`
	Content AdaptiveEntryContent `json:"content"`
}

type AdaptiveEntryContent struct {
	Item      *AdaptiveItem      `json:"item"`
	Operation *AdaptiveOperation `json:"operation"`
}

type AdaptiveItem struct {
	Content struct {
		Tweet struct {
			ID FlexID `json:"id"`
		} `json:"tweet"`
	} `json:"content"`
}

type AdaptiveOperation struct {
	Cursor struct {
		Value string `json:"value"`
	} `json:"cursor"`
}
