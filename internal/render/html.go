package render

import (
	"fmt"
	"html"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/codemasher/dril-archive/internal/model"
)

// Options controls the static page output.
type Options struct {
	// Handle is the archived account's screen name, used for the page
	// title and the header links.
	Handle string
	// TweetsPerPage per rendered page; <=0 renders everything on one page.
	TweetsPerPage int
	// MaxPages caps the number of rendered pages, 0 means unlimited.
	// A cap of 1 also suppresses the pagination bar.
	MaxPages int
}

// WritePages renders the timeline into static HTML under dir: an avatar
// stylesheet, an index.html for the first page and page-N.html for the
// rest. Tweets render in the timeline's current order.
func WritePages(dir string, tl *model.Timeline, opts Options) error {
	if dir == "" {
		return fmt.Errorf("invalid html output dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tweets := tl.Tweets()
	perPage := opts.TweetsPerPage
	headerHeight := 96
	if perPage <= 0 || perPage > len(tweets) {
		perPage = len(tweets)
		headerHeight = 48
	}
	if perPage == 0 {
		perPage = 1
	}

	if err := writeAvatarCSS(dir, tl); err != nil {
		return err
	}

	pages := (len(tweets) + perPage - 1) / perPage

	for page := 0; page*perPage < len(tweets) || page == 0; page++ {
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			break
		}

		hi := (page + 1) * perPage
		if hi > len(tweets) {
			hi = len(tweets)
		}

		data := pageData{
			Handle:       opts.Handle,
			HeaderHeight: headerHeight,
		}
		for _, t := range tweets[page*perPage : hi] {
			data.Tweets = append(data.Tweets, buildTweetView(tl, t, false))
		}
		if pages > 1 && opts.MaxPages != 1 {
			for i := 0; i < pages; i++ {
				data.Pagination = append(data.Pagination, pageLink{
					Href:    "./" + pageName(i),
					Label:   fmt.Sprintf("%d", i+1),
					Current: i == page,
				})
			}
		}

		f, err := os.Create(filepath.Join(dir, pageName(page)))
		if err != nil {
			return err
		}
		if err := pageTmpl.Execute(f, data); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	return nil
}

func pageName(page int) string {
	if page == 0 {
		return "index.html"
	}
	return fmt.Sprintf("page-%d.html", page+1)
}

// writeAvatarCSS emits one content-url rule per user so the tweet markup
// can reference avatars by screen name alone.
func writeAvatarCSS(dir string, tl *model.Timeline) error {
	var b strings.Builder
	for _, u := range tl.Users() {
		fmt.Fprintf(&b, ".avatar-%s{content:url(%q)}\n", u.ScreenName, u.ProfileImageS)
	}
	return os.WriteFile(filepath.Join(dir, "avatars.css"), []byte(b.String()), 0o644)
}

type pageData struct {
	Handle       string
	HeaderHeight int
	Pagination   []pageLink
	Tweets       []*tweetView
}

type pageLink struct {
	Href    string
	Label   string
	Current bool
}

type banner struct {
	Href  string
	Icon  string
	Label string
}

type tweetView struct {
	Banner        *banner
	ScreenName    string
	DisplayName   string
	ProfileLink   string
	StatusLink    string
	DateTime      string
	DateDisplay   string
	Text          template.HTML
	Media         []mediaView
	Quoted        *tweetView
	ReplyCount    string
	RetweetCount  string
	FavoriteCount string
}

type mediaView struct {
	AspectRatio float64
	AltText     string
	URL         string
	Style       template.CSS
}

// buildTweetView resolves users into the tweet and flattens it for the
// template. A retweet renders the retweeted original with a banner; quotes
// nest one level deep only.
func buildTweetView(tl *model.Timeline, t *model.Tweet, quoted bool) *tweetView {
	v := &tweetView{}

	display := t
	if t.RetweetedStatus != nil {
		display = t.RetweetedStatus
		v.Banner = &banner{
			Href:  fmt.Sprintf("https://twitter.com/%s/status/%d", screenName(tl, t.UserID), t.ID),
			Icon:  "retweet",
			Label: displayName(tl, t.UserID) + " retweeted",
		}
	} else if t.InReplyToStatusID != nil {
		name := replyName(tl, t)
		v.Banner = &banner{
			Href:  fmt.Sprintf("https://twitter.com/%s/status/%d", replyScreenName(tl, t), *t.InReplyToStatusID),
			Icon:  "reply",
			Label: "In reply to " + name,
		}
	}

	v.ScreenName = screenName(tl, display.UserID)
	v.DisplayName = displayName(tl, display.UserID)
	v.ProfileLink = "https://twitter.com/" + v.ScreenName
	v.StatusLink = fmt.Sprintf("https://twitter.com/%s/status/%d", v.ScreenName, display.ID)
	v.DateTime = time.Unix(display.CreatedAt, 0).UTC().Format(time.RFC3339)
	v.DateDisplay = time.Unix(display.CreatedAt, 0).UTC().Format("Jan 02, 2006")
	v.Text = linkify(display.Text)
	v.ReplyCount = formatCount(display.ReplyCount)
	v.RetweetCount = formatCount(display.RetweetCount)
	v.FavoriteCount = formatCount(display.FavoriteCount)

	for _, m := range display.Media {
		if m.Type != "photo" {
			continue
		}
		style := template.CSS("width: auto; height: 100%;")
		if m.Width < m.Height {
			style = template.CSS("width: 100%; height: auto;")
		}
		v.Media = append(v.Media, mediaView{
			AspectRatio: m.AspectRatio,
			AltText:     m.AltText,
			URL:         m.URL,
			Style:       style,
		})
	}

	if !quoted && t.QuotedStatus != nil {
		v.Quoted = buildTweetView(tl, t.QuotedStatus, true)
	}

	return v
}

func screenName(tl *model.Timeline, userID int64) string {
	if u := tl.User(userID); u != nil {
		return u.ScreenName
	}
	return ""
}

func displayName(tl *model.Timeline, userID int64) string {
	if u := tl.User(userID); u != nil {
		return u.Name
	}
	return ""
}

func replyScreenName(tl *model.Timeline, t *model.Tweet) string {
	if t.InReplyToUserID != nil {
		if u := tl.User(*t.InReplyToUserID); u != nil {
			return u.ScreenName
		}
	}
	if t.InReplyToScreenName != nil {
		return *t.InReplyToScreenName
	}
	return ""
}

func replyName(tl *model.Timeline, t *model.Tweet) string {
	if t.InReplyToUserID != nil {
		if u := tl.User(*t.InReplyToUserID); u != nil {
			return u.Name
		}
	}
	if t.InReplyToScreenName != nil {
		return "@" + *t.InReplyToScreenName
	}
	return ""
}

var (
	urlRx     = regexp.MustCompile(`(?i)https?://\S+`)
	hashtagRx = regexp.MustCompile(`#[\w_]+`)
	mentionRx = regexp.MustCompile(`(?i)@([a-z0-9_]+)`)
)

// linkify escapes the tweet text and turns URLs, hashtags and mentions
// into anchors. Newlines become explicit breaks.
func linkify(text string) template.HTML {
	out := html.EscapeString(text)
	out = strings.ReplaceAll(out, "\n", "<br/>\n")

	out = urlRx.ReplaceAllStringFunc(out, func(m string) string {
		return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, m, m)
	})
	out = hashtagRx.ReplaceAllStringFunc(out, func(m string) string {
		return fmt.Sprintf(`<a href="https://twitter.com/search?q=%%23%s" target="_blank">%s</a>`, m[1:], m)
	})
	out = mentionRx.ReplaceAllStringFunc(out, func(m string) string {
		return fmt.Sprintf(`<a href="https://twitter.com/%s" target="_blank">%s</a>`, m[1:], m)
	})

	return template.HTML(out)
}

// formatCount renders a counter with dots as thousands separators.
func formatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0"/>
	<title>{{.Handle}} archive</title>
	<link rel="icon" type="image/png" sizes="48x48" href="./assets/favicon.ico">
	<link rel="stylesheet" href="./assets/timeline.css">
	<link rel="stylesheet" href="./avatars.css">
</head>
<body>
<div id="header-wrapper">
	<div>
		<a href="./"><img id="header-image" src="./assets/{{.Handle}}.jpg" alt="{{.Handle}} archive" /></a>
		<a href="./{{.Handle}}-top-liked.html">top liked</a> &bull;
		<a href="./{{.Handle}}-top-retweeted.html">top retweeted</a> &bull;
		<a href="https://twitter.com/{{.Handle}}" target="_blank">@{{.Handle}}</a>
	</div>
</div>
{{- if .Pagination}}
<div id="pagination-wrapper">
{{- range .Pagination}}
	<a{{if .Current}} class="currentpage"{{end}} href="{{.Href}}"><span>{{.Label}}</span></a>
{{- end}}
</div>
{{- end}}
<div id="timeline-wrapper" style="height: calc(100% - {{.HeaderHeight}}px);">
{{- range .Tweets}}
{{template "tweet" .}}
{{- end}}
</div>
</body>
</html>
{{define "tweet"}}
<article class="tweet">
	{{- with .Banner}}
	<div class="status"><a href="{{.Href}}" target="_blank"><div class="{{.Icon}}"></div>{{.Label}}</a></div>
	{{- end}}
	<div class="avatar"><img class="avatar-{{.ScreenName}}" alt="{{.ScreenName}} avatar" /></div>
	<div class="body">
		<div class="header">
			<a href="{{.ProfileLink}}" target="_blank"><span class="user">{{.DisplayName}}</span></a>
			<a href="{{.ProfileLink}}" target="_blank"><span class="screenname">@{{.ScreenName}}</span></a>
			<span>&middot;</span>
			<a href="{{.StatusLink}}" target="_blank"><time class="timestamp" datetime="{{.DateTime}}">{{.DateDisplay}}</time></a>
		</div>
		<div dir="auto" class="text">{{.Text}}</div>
		<div class="media">
		{{- if .Media}}
			<div class="images grid-{{len .Media}}">
			{{- range .Media}}
				<div style="aspect-ratio: {{.AspectRatio}};"><img alt="{{.AltText}}" src="{{.URL}}" style="{{.Style}}"/></div>
			{{- end}}
			</div>
		{{- end}}
		{{- with .Quoted}}{{template "tweet" .}}{{end}}
		</div>
		<div class="footer">
			<div><div class="reply"></div>{{.ReplyCount}}</div>
			<div><div class="retweet"></div>{{.RetweetCount}}</div>
			<div><div class="like"></div>{{.FavoriteCount}}</div>
		</div>
	</div>
</article>
{{end}}`))
