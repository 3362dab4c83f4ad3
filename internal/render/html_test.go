package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemasher/dril-archive/internal/model"
)

func renderTimeline(t *testing.T) *model.Timeline {
	t.Helper()
	tl := model.NewTimeline()
	for i := int64(1); i <= 5; i++ {
		tl.Set(&model.Tweet{ID: i, UserID: 1, CreatedAt: 1669231962, Text: "tweet", FavoriteCount: int(i)})
	}
	tl.SetUser(&model.User{
		ID:            1,
		ScreenName:    "dril",
		Name:          "wint",
		ProfileImageS: "https://pbs.twimg.com/profile_images/1/dril_normal.jpg",
	})
	require.NoError(t, tl.SortBy("id", true))
	return tl
}

func TestWritePagesPaginates(t *testing.T) {
	dir := t.TempDir()
	tl := renderTimeline(t)

	require.NoError(t, WritePages(dir, tl, Options{Handle: "dril", TweetsPerPage: 2}))

	for _, name := range []string{"index.html", "page-2.html", "page-3.html", "avatars.css"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "pagination-wrapper")
	assert.Contains(t, string(index), `href="./page-3.html"`)
	assert.Contains(t, string(index), "@dril")

	css, err := os.ReadFile(filepath.Join(dir, "avatars.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), `.avatar-dril{content:url("https://pbs.twimg.com/profile_images/1/dril_normal.jpg")}`)
}

func TestWritePagesSinglePage(t *testing.T) {
	dir := t.TempDir()
	tl := renderTimeline(t)

	require.NoError(t, WritePages(dir, tl, Options{Handle: "dril", TweetsPerPage: -1}))

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(index), "pagination-wrapper")

	_, err = os.Stat(filepath.Join(dir, "page-2.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestWritePagesMaxPagesSuppressesPagination(t *testing.T) {
	dir := t.TempDir()
	tl := renderTimeline(t)

	require.NoError(t, WritePages(dir, tl, Options{Handle: "dril", TweetsPerPage: 2, MaxPages: 1}))

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(index), "pagination-wrapper")

	_, err = os.Stat(filepath.Join(dir, "page-2.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildTweetViewRetweetBanner(t *testing.T) {
	tl := model.NewTimeline()
	tl.SetUser(&model.User{ID: 1, ScreenName: "dril", Name: "wint"})
	tl.SetUser(&model.User{ID: 2, ScreenName: "someone", Name: "Some One"})
	orig := int64(200)
	tl.Set(&model.Tweet{
		ID: 100, UserID: 1, CreatedAt: 1669231962, Text: "RT @someone hello",
		RetweetedStatusID: &orig,
		RetweetedStatus:   &model.Tweet{ID: 200, UserID: 2, CreatedAt: 1669231000, Text: "hello", FavoriteCount: 7},
	})

	v := buildTweetView(tl, tl.Get(100), false)
	require.NotNil(t, v.Banner)
	assert.Equal(t, "retweet", v.Banner.Icon)
	assert.Equal(t, "wint retweeted", v.Banner.Label)

	// the retweeted original is what renders
	assert.Equal(t, "someone", v.ScreenName)
	assert.Equal(t, "https://twitter.com/someone/status/200", v.StatusLink)
	assert.Equal(t, "7", v.FavoriteCount)
}

func TestBuildTweetViewMissingUserRendersEmptyHandle(t *testing.T) {
	tl := model.NewTimeline()
	tl.Set(&model.Tweet{ID: 1, UserID: 999, CreatedAt: 1669231962, Text: "orphan"})

	v := buildTweetView(tl, tl.Get(1), false)
	assert.Equal(t, "", v.ScreenName)
	assert.Equal(t, "https://twitter.com/", v.ProfileLink)
}

func TestLinkify(t *testing.T) {
	out := string(linkify("see https://example.com/x #tag @dril\nnext"))
	assert.Contains(t, out, `<a href="https://example.com/x" target="_blank">https://example.com/x</a>`)
	assert.Contains(t, out, `<a href="https://twitter.com/search?q=%23tag" target="_blank">#tag</a>`)
	assert.Contains(t, out, `<a href="https://twitter.com/dril" target="_blank">@dril</a>`)
	assert.Contains(t, out, "<br/>")
}

func TestLinkifyEscapes(t *testing.T) {
	out := string(linkify("<script>alert(1)</script>"))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", formatCount(0))
	assert.Equal(t, "999", formatCount(999))
	assert.Equal(t, "1.000", formatCount(1000))
	assert.Equal(t, "1.234.567", formatCount(1234567))
}
