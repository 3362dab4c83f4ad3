package twitter

import (
	"regexp"
	"strings"
	"time"

	"github.com/codemasher/dril-archive/internal/model"
)

// rubyDate is the created_at format of the legacy endpoints,
// e.g. "Wed Nov 23 19:32:42 +0000 2022". v2 returns RFC3339.
const rubyDate = "Mon Jan 02 15:04:05 -0700 2006"

var whitespace = regexp.MustCompile(`\s+`)

// ParseCreatedAt converts either timestamp format to epoch seconds,
// 0 if unparseable.
func ParseCreatedAt(s string) int64 {
	if s == "" {
		return 0
	}
	if t, err := time.Parse(rubyDate, s); err == nil {
		return t.Unix()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix()
	}
	return 0
}

// ParseTweet normalizes a raw status from any endpoint shape into the
// canonical model. Shortened URLs are expanded in place, media short-URLs
// are stripped entirely (media is rendered separately, not inline). Missing
// optional fields never fail, they default to zero values.
func ParseTweet(s *Status) *model.Tweet {
	text := s.Text
	if s.FullText != "" {
		text = s.FullText
	}

	if s.Entities != nil {
		for _, e := range s.Entities.URLs {
			if e.ExpandedURL != "" {
				text = strings.ReplaceAll(text, e.URL, e.ExpandedURL)
			}
		}
	}

	var media []model.Media
	for _, m := range mediaEntities(s) {
		if m.URL != "" {
			text = strings.ReplaceAll(text, m.URL, "")
		}
		media = append(media, ParseMedia(m))
	}

	t := &model.Tweet{
		ID:                  s.ID.Int64(),
		UserID:              authorID(s),
		CreatedAt:           ParseCreatedAt(s.CreatedAt),
		Text:                text,
		Source:              s.Source,
		RetweetCount:        count(s.RetweetCount, s.PublicMetrics, func(m *TweetMetrics) int { return m.RetweetCount }),
		FavoriteCount:       count(s.FavoriteCount, s.PublicMetrics, func(m *TweetMetrics) int { return m.LikeCount }),
		ReplyCount:          count(s.ReplyCount, s.PublicMetrics, func(m *TweetMetrics) int { return m.ReplyCount }),
		QuoteCount:          count(s.QuoteCount, s.PublicMetrics, func(m *TweetMetrics) int { return m.QuoteCount }),
		Favorited:           s.Favorited,
		Retweeted:           s.Retweeted,
		PossiblySensitive:   s.PossiblySensitive,
		InReplyToStatusID:   s.InReplyToStatusID.Ptr(),
		InReplyToUserID:     s.InReplyToUserID.Ptr(),
		InReplyToScreenName: s.InReplyToScreenName,
		IsQuoteStatus:       s.IsQuoteStatus,
		QuotedStatusID:      s.QuotedStatusID.Ptr(),
		ConversationID:      s.ConversationID.Ptr(),
		Media:               media,
		Place:               opaque(s.Place),
		Coordinates:         opaque(s.Coordinates),
		Geo:                 opaque(s.Geo),
	}

	if s.SelfThread != nil {
		t.SelfThreadID = s.SelfThread.ID.Ptr()
	}

	return t
}

// authorID resolves the author in fixed priority order:
// user_id, author_id, nested user.id, zero.
func authorID(s *Status) int64 {
	if s.UserID != 0 {
		return s.UserID.Int64()
	}
	if s.AuthorID != 0 {
		return s.AuthorID.Int64()
	}
	if s.User != nil {
		return s.User.ID.Int64()
	}
	return 0
}

// count resolves a counter, flat legacy field first, public_metrics as
// fallback, zero otherwise.
func count(flat *int, metrics *TweetMetrics, pick func(*TweetMetrics) int) int {
	if flat != nil {
		return *flat
	}
	if metrics != nil {
		return pick(metrics)
	}
	return 0
}

// mediaEntities collects the media attached to a status, preferring the
// extended entities (the legacy entity list truncates multi-photo tweets).
func mediaEntities(s *Status) []MediaEntity {
	if s.ExtendedEntities != nil && len(s.ExtendedEntities.Media) > 0 {
		return s.ExtendedEntities.Media
	}
	if s.Entities != nil {
		return s.Entities.Media
	}
	return nil
}

func opaque(raw []byte) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// ParseMedia normalizes one media entity. The sensitivity flag comes from
// the media item itself when present, nil otherwise.
func ParseMedia(m MediaEntity) model.Media {
	url := m.MediaURLHTTPS
	if url == "" {
		url = m.MediaURL
	}
	if url == "" {
		url = m.URL
	}

	alt := m.ExtAltText
	if alt == "" {
		alt = m.AltText
	}

	width, height := m.Width, m.Height
	if m.OriginalInfo != nil {
		width, height = m.OriginalInfo.Width, m.OriginalInfo.Height
	}

	variants := m.Variants
	if m.VideoInfo != nil {
		variants = m.VideoInfo.Variants
	}

	out := model.Media{
		ID:                m.ID.Int64(),
		MediaKey:          m.MediaKey,
		SourceUserID:      m.SourceUserID.Ptr(),
		Type:              m.Type,
		URL:               url,
		AltText:           alt,
		PossiblySensitive: m.PossiblySensitive,
		Width:             width,
		Height:            height,
		AspectRatio:       model.AspectRatio(width, height),
	}
	for _, v := range variants {
		out.Variants = append(out.Variants, model.VideoVariant(v))
	}
	return out
}

// ParseUser normalizes a raw profile. Whitespace in the free-text fields is
// collapsed, shortened URLs in bio and website are expanded, and the full
// size avatar is derived from the thumbnail.
func ParseUser(p *Profile) *model.User {
	name := collapse(p.Name)
	description := collapse(p.Description)
	location := collapse(p.Location)
	url := collapse(p.URL)

	if p.Entities != nil {
		for _, e := range p.Entities.Description.URLs {
			if e.ExpandedURL != "" {
				description = strings.ReplaceAll(description, e.URL, e.ExpandedURL)
			}
		}
		for _, e := range p.Entities.URL.URLs {
			if e.ExpandedURL != "" {
				url = strings.ReplaceAll(url, e.URL, e.ExpandedURL)
			}
		}
	}

	screenName := p.ScreenName
	if screenName == "" {
		screenName = p.Username
	}

	thumb := p.ProfileImageURLHTTPS
	if thumb == "" {
		thumb = p.ProfileImageURL
	}

	return &model.User{
		ID:              p.ID.Int64(),
		ScreenName:      screenName,
		Name:            name,
		Description:     description,
		Location:        location,
		URL:             url,
		FollowersCount:  userCount(p.FollowersCount, p.PublicMetrics, func(m *UserMetrics) int { return m.FollowersCount }),
		FriendsCount:    userCount(p.FriendsCount, p.PublicMetrics, func(m *UserMetrics) int { return m.FollowingCount }),
		StatusesCount:   userCount(p.StatusesCount, p.PublicMetrics, func(m *UserMetrics) int { return m.TweetCount }),
		FavouritesCount: userCount(p.FavouritesCount, nil, nil),
		CreatedAt:       ParseCreatedAt(p.CreatedAt),
		Protected:       p.Protected,
		Verified:        p.Verified,
		Muting:          p.Muting,
		Blocking:        p.Blocking,
		BlockedBy:       p.BlockedBy,
		HasNFTAvatar:    p.ExtHasNFTAvatar,
		BlueVerified:    p.ExtIsBlueVerified,
		ProfileImageS:   thumb,
		ProfileImage:    model.FullSizeAvatar(thumb),
		ProfileBanner:   p.ProfileBannerURL,
	}
}

func userCount(flat *int, metrics *UserMetrics, pick func(*UserMetrics) int) int {
	if flat != nil {
		return *flat
	}
	if metrics != nil && pick != nil {
		return pick(metrics)
	}
	return 0
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// JoinIncludedMedia attaches media from the includes block onto the data
// statuses via attachments.media_keys. The v2 endpoint delivers media out of
// band, so without this join a v2 status would always normalize with an
// empty media list.
func JoinIncludedMedia(resp *V2Response) {
	if resp == nil || resp.Includes == nil || len(resp.Includes.Media) == 0 {
		return
	}
	byKey := make(map[string]MediaEntity, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		byKey[m.MediaKey] = m
	}
	for i := range resp.Data {
		s := &resp.Data[i]
		if s.Attachments == nil || len(s.Attachments.MediaKeys) == 0 {
			continue
		}
		var media []MediaEntity
		for _, key := range s.Attachments.MediaKeys {
			if m, ok := byKey[key]; ok {
				media = append(media, m)
			}
		}
		if len(media) == 0 {
			continue
		}
		if s.Entities == nil {
			s.Entities = &Entities{}
		}
		if len(s.Entities.Media) == 0 {
			s.Entities.Media = media
		}
	}
}
