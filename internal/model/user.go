package model

import "strings"

// User is the canonical representation of an account. Whenever a source
// yields a fresh copy of an ID the whole record is replaced, partial user
// records are never merged.
type User struct {
	ID              int64  `json:"id"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	FollowersCount  int    `json:"followers_count"`
	FriendsCount    int    `json:"friends_count"`
	StatusesCount   int    `json:"statuses_count"`
	FavouritesCount int    `json:"favourites_count"`
	CreatedAt       int64  `json:"created_at"`
	Protected       bool   `json:"protected"`
	Verified        bool   `json:"verified"`
	Muting          bool   `json:"muting"`
	Blocking        bool   `json:"blocking"`
	BlockedBy       bool   `json:"blocked_by"`
	HasNFTAvatar    bool   `json:"has_nft_avatar"`
	BlueVerified    bool   `json:"blue_verified"`
	// ProfileImageS is the thumbnail avatar as delivered by the API,
	// ProfileImage the full size version derived from it.
	ProfileImage  string `json:"profile_image"`
	ProfileImageS string `json:"profile_image_s"`
	ProfileBanner string `json:"profile_banner"`
}

// FullSizeAvatar derives the full size avatar URL from a thumbnail URL by
// dropping the "_normal" suffix token. Pure string transform, no fetch.
func FullSizeAvatar(thumb string) string {
	return strings.Replace(thumb, "_normal.", ".", 1)
}
