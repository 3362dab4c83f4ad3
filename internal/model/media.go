package model

import "math"

// Media describes one attached image or video. It does not own the file,
// only the metadata needed to render it.
type Media struct {
	ID                int64          `json:"id"`
	MediaKey          string         `json:"media_key,omitempty"`
	SourceUserID      *int64         `json:"source_user_id"`
	Type              string         `json:"type"`
	URL               string         `json:"url"`
	AltText           string         `json:"alt_text"`
	PossiblySensitive *bool          `json:"possibly_sensitive"`
	Width             int            `json:"width,omitempty"`
	Height            int            `json:"height,omitempty"`
	AspectRatio       float64        `json:"aspect_ratio,omitempty"`
	Variants          []VideoVariant `json:"variants,omitempty"`
}

// VideoVariant is one playable rendition of a video attachment.
type VideoVariant struct {
	Bitrate     int    `json:"bitrate,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// AspectRatio computes width/height rounded to 5 decimals, or 0 when either
// dimension is missing.
func AspectRatio(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	return math.Round(float64(width)/float64(height)*1e5) / 1e5
}
