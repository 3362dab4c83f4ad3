package archive

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemasher/dril-archive/internal/model"
	"github.com/codemasher/dril-archive/internal/twitter"
)

// fakeAPI serves canned payloads per endpoint. The /2/tweets handler
// distinguishes the meta lookup from the full lookup by the presence of
// the expansions parameter, same as the real endpoint usage.
type fakeAPI struct {
	v1Lookup        func(ids string) string
	v2Meta          string
	v2Full          string
	v1Users         string
	v1Search        []string
	searchIdx       int
	adaptive        []string
	adaptiveIdx     int
	adaptiveCursors []string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("expansions") != "" {
			_, _ = w.Write([]byte(f.v2Full))
			return
		}
		_, _ = w.Write([]byte(f.v2Meta))
	})
	mux.HandleFunc("/1.1/statuses/lookup.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.v1Lookup(r.URL.Query().Get("id"))))
	})
	mux.HandleFunc("/1.1/users/lookup.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.v1Users))
	})
	mux.HandleFunc("/1.1/search/tweets.json", func(w http.ResponseWriter, r *http.Request) {
		page := f.v1Search[f.searchIdx]
		if f.searchIdx < len(f.v1Search)-1 {
			f.searchIdx++
		}
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/2/search/adaptive.json", func(w http.ResponseWriter, r *http.Request) {
		f.adaptiveCursors = append(f.adaptiveCursors, r.URL.Query().Get("cursor"))
		page := f.adaptive[f.adaptiveIdx]
		if f.adaptiveIdx < len(f.adaptive)-1 {
			f.adaptiveIdx++
		}
		_, _ = w.Write([]byte(page))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestReconciler(t *testing.T, srv *httptest.Server, since int64) *Reconciler {
	t.Helper()
	client := twitter.NewClient(twitter.ClientOptions{
		APIToken:    "test",
		PoliteDelay: time.Millisecond,
		IdleWait:    time.Millisecond,
		BaseURL:     srv.URL,
		Logger:      zerolog.Nop(),
	})
	return NewReconciler(client, since, zerolog.Nop())
}

// The two-endpoint retweet repair: stub 100 references original 200. The
// legacy lookup delivers the full body, the modern lookup overrides
// author, text, conversation and media.
func TestResolveRetweetsTwoEndpointRepair(t *testing.T) {
	api := &fakeAPI{
		v2Meta: `{"data": [{
			"id": "100", "author_id": "7",
			"text": "RT @someone hello",
			"created_at": "2022-11-23T19:32:42Z",
			"referenced_tweets": [{"type": "retweeted", "id": "200"}]
		}]}`,
		v1Lookup: func(ids string) string {
			return `[{
				"id": 200,
				"full_text": "legacy truncated text",
				"created_at": "Wed Nov 23 19:32:42 +0000 2022",
				"favorite_count": 5, "retweet_count": 3,
				"in_reply_to_screen_name": "third",
				"user": {"id": 9, "screen_name": "someone", "name": "Some One"}
			}]`
		},
		v2Full: `{
			"data": [{
				"id": "200", "author_id": "9",
				"text": "the full modern text",
				"conversation_id": "200",
				"attachments": {"media_keys": ["3_1"]}
			}],
			"includes": {"media": [{"media_key": "3_1", "type": "photo", "url": "https://pbs/img.jpg", "width": 100, "height": 50}]}
		}`,
	}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{ID: 100, UserID: 7, CreatedAt: 1669231962, Text: "RT @someone hello"})

	r := newTestReconciler(t, srv, 1)
	r.IngestSnapshot(prior, true)
	r.ResolveRetweets(context.Background())

	tl := r.Finalize()
	got := tl.Get(100)
	require.NotNil(t, got)
	require.NotNil(t, got.RetweetedStatusID)
	assert.Equal(t, int64(200), *got.RetweetedStatusID)

	rt := got.RetweetedStatus
	require.NotNil(t, rt)
	assert.Equal(t, int64(200), rt.ID)

	// modern endpoint is authoritative for author, text and media
	assert.Equal(t, int64(9), rt.UserID)
	assert.Equal(t, "the full modern text", rt.Text)
	require.NotNil(t, rt.ConversationID)
	assert.Equal(t, int64(200), *rt.ConversationID)
	require.Len(t, rt.Media, 1)
	assert.Equal(t, "https://pbs/img.jpg", rt.Media[0].URL)

	// legacy endpoint is authoritative for everything else
	assert.Equal(t, 5, rt.FavoriteCount)
	assert.Equal(t, 3, rt.RetweetCount)
	require.NotNil(t, rt.InReplyToScreenName)
	assert.Equal(t, "third", *rt.InReplyToScreenName)

	// the original author landed in the user table
	require.NotNil(t, tl.User(9))
	assert.Equal(t, "someone", tl.User(9).ScreenName)
}

func TestResolveRetweetsSkipsNonRetweet(t *testing.T) {
	api := &fakeAPI{
		v2Meta:   `{"data": [{"id": "100", "text": "not actually a retweet"}]}`,
		v1Lookup: func(string) string { return `[]` },
		v2Full:   `{"data": []}`,
	}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{ID: 100, CreatedAt: 1000, Text: "RT @someone hello"})

	r := newTestReconciler(t, srv, 1)
	r.IngestSnapshot(prior, true)
	r.ResolveRetweets(context.Background())

	// the stub stays unresolved and is dropped at finalize
	tl := r.Finalize()
	assert.Nil(t, tl.Get(100))
	assert.Equal(t, 0, tl.Len())
}

func TestSnapshotIngestOutsideLookbackKeptVerbatim(t *testing.T) {
	api := &fakeAPI{v1Lookup: func(string) string { return `[]` }}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{ID: 50, CreatedAt: 500, Text: "RT @ancient retweet"})

	// cutoff after the tweet's timestamp: no re-resolution
	r := newTestReconciler(t, srv, 1000)
	r.IngestSnapshot(prior, true)

	tl := r.Finalize()
	require.NotNil(t, tl.Get(50))
	assert.Equal(t, "RT @ancient retweet", tl.Get(50).Text)
}

// CSV row for an unknown non-retweet ID: backfilled from the legacy lookup.
func TestBackfillCSV(t *testing.T) {
	api := &fakeAPI{
		v1Lookup: func(ids string) string {
			if !strings.Contains(ids, "42") {
				return `[]`
			}
			return `[{
				"id": 42,
				"full_text": "the backfilled tweet",
				"created_at": "Wed Nov 23 19:32:42 +0000 2022",
				"user": {"id": 16298441, "screen_name": "dril", "name": "wint"}
			}]`
		},
	}
	srv := api.server(t)

	r := newTestReconciler(t, srv, 1)
	r.IngestCSV([]CSVRow{{ID: 42, IsRetweet: false}})
	r.BackfillCSV(context.Background())

	tl := r.Finalize()
	got := tl.Get(42)
	require.NotNil(t, got)
	assert.Equal(t, "the backfilled tweet", got.Text)
	assert.Equal(t, int64(16298441), got.UserID)
}

func TestIngestCSVDoesNotDowngradeKnownTweets(t *testing.T) {
	api := &fakeAPI{v1Lookup: func(string) string { return `[]` }}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{ID: 42, CreatedAt: 1000, Text: "already resolved"})

	r := newTestReconciler(t, srv, 1)
	r.IngestSnapshot(prior, false)
	r.IngestCSV([]CSVRow{{ID: 42, IsRetweet: true}, {ID: 42, IsRetweet: false}})

	tl := r.Finalize()
	require.NotNil(t, tl.Get(42))
	assert.Equal(t, "already resolved", tl.Get(42).Text)
}

// A plain-text photo permalink: the URL is stripped and the referenced
// status' media is attached.
func TestRepairEmbeddedPhotoLink(t *testing.T) {
	api := &fakeAPI{
		v1Lookup: func(ids string) string {
			if !strings.Contains(ids, "99") {
				return `[]`
			}
			return `[{
				"id": 99,
				"full_text": "photo carrier",
				"user": {"id": 5, "screen_name": "photog"},
				"entities": {"media": [{"media_url_https": "https://pbs/photo.jpg", "type": "photo", "sizes": {}}]}
			}]`
		},
	}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{
		ID:        10,
		CreatedAt: 2000,
		Text:      "check this https://twitter.com/someuser/status/99/photo/1",
	})

	r := newTestReconciler(t, srv, 1)
	r.IngestSnapshot(prior, false)
	r.RepairEmbeddedLinks(context.Background())

	tl := r.Finalize()
	got := tl.Get(10)
	require.NotNil(t, got)
	assert.Equal(t, "check this ", got.Text)
	require.NotEmpty(t, got.Media)
	assert.Equal(t, "https://pbs/photo.jpg", got.Media[0].URL)
}

// A plain-text status permalink with no existing quote relation becomes a
// synthetic quoted status.
func TestRepairEmbeddedQuoteLink(t *testing.T) {
	api := &fakeAPI{
		v1Lookup: func(ids string) string {
			if !strings.Contains(ids, "99") {
				return `[]`
			}
			return `[{
				"id": 99,
				"full_text": "the quoted tweet",
				"user": {"id": 5, "screen_name": "quoted"}
			}]`
		},
	}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{
		ID:        10,
		CreatedAt: 2000,
		Text:      "so true https://twitter.com/someuser/status/99",
	})

	r := newTestReconciler(t, srv, 1)
	r.IngestSnapshot(prior, false)
	r.RepairEmbeddedLinks(context.Background())

	tl := r.Finalize()
	got := tl.Get(10)
	require.NotNil(t, got)
	assert.Equal(t, "so true ", got.Text)
	require.NotNil(t, got.QuotedStatusID)
	assert.Equal(t, int64(99), *got.QuotedStatusID)
	require.NotNil(t, got.QuotedStatus)
	assert.Equal(t, "the quoted tweet", got.QuotedStatus.Text)
}

func TestRepairSkipsTweetsBeforeCutoff(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		v1Lookup: func(string) string { calls++; return `[]` },
	}
	srv := api.server(t)

	prior := model.NewTimeline()
	prior.Set(&model.Tweet{
		ID:        10,
		CreatedAt: 100,
		Text:      "old https://twitter.com/someuser/status/99/photo/1",
	})

	r := newTestReconciler(t, srv, 1000)
	r.IngestSnapshot(prior, false)
	r.RepairEmbeddedLinks(context.Background())

	assert.Equal(t, 0, calls)
}

func TestIngestAPISearch(t *testing.T) {
	api := &fakeAPI{
		v1Search: []string{
			`{
				"statuses": [{
					"id": 7, "full_text": "from search",
					"created_at": "Wed Nov 23 19:32:42 +0000 2022",
					"user": {"id": 16298441, "screen_name": "dril"}
				}],
				"search_metadata": {"max_id_str": "7", "next_results": "?q=from%3Adril&count=100&max_id=6"}
			}`,
			`{"statuses": [], "search_metadata": {}}`,
		},
	}
	srv := api.server(t)

	r := newTestReconciler(t, srv, 1)
	// search must not overwrite richer existing bodies
	r.put(&model.Tweet{ID: 7, Text: "already here"})
	r.IngestAPISearch(context.Background(), "from:dril")

	tl := r.Finalize()
	assert.Equal(t, "already here", tl.Get(7).Text)
	require.NotNil(t, tl.User(16298441))
}

// Adaptive search delivers a context pool plus timeline instructions.
// Only instruction-marked IDs may land in the timeline; quoted tweets are
// embedded from the pool, and a marked ID the pool never delivered is
// skipped.
func TestIngestAdaptiveSearch(t *testing.T) {
	api := &fakeAPI{
		adaptive: []string{
			`{
				"globalObjects": {
					"tweets": {
						"100": {
							"id": "100", "full_text": "first page",
							"created_at": "Wed Nov 23 19:32:42 +0000 2022",
							"user_id": 16298441,
							"is_quote_status": true, "quoted_status_id": "300"
						},
						"300": {"id": "300", "full_text": "the quoted context", "user_id": 8}
					},
					"users": {
						"16298441": {"id": 16298441, "screen_name": "dril", "name": "wint"},
						"8": {"id": 8, "screen_name": "quotee"}
					}
				},
				"timeline": {"instructions": [{"addEntries": {"entries": [
					{"entryId": "sq-I-t-100", "content": {"item": {"content": {"tweet": {"id": "100"}}}}},
					{"entryId": "sq-cursor-bottom", "content": {"operation": {"cursor": {"value": "scroll-1"}}}}
				]}}]}
			}`,
			`{
				"globalObjects": {
					"tweets": {
						"200": {"id": "200", "full_text": "second page", "user_id": 16298441}
					},
					"users": {}
				},
				"timeline": {"instructions": [
					{"addEntries": {"entries": [
						{"entryId": "sq-I-t-200", "content": {"item": {"content": {"tweet": {"id": "200"}}}}},
						{"entryId": "sq-I-t-999", "content": {"item": {"content": {"tweet": {"id": "999"}}}}}
					]}},
					{"replaceEntry": {"entryIdToReplace": "sq-cursor-bottom", "entry": {"content": {"operation": {"cursor": {"value": ""}}}}}}
				]}
			}`,
		},
	}
	srv := api.server(t)

	r := newTestReconciler(t, srv, 1)
	r.IngestAdaptiveSearch(context.Background(), "from:dril")

	// the cursor from page one drives the second request
	assert.Equal(t, []string{"", "scroll-1"}, api.adaptiveCursors)

	tl := r.Finalize()
	assert.Equal(t, 2, tl.Len())

	got := tl.Get(100)
	require.NotNil(t, got)
	assert.Equal(t, "first page", got.Text)
	require.NotNil(t, got.QuotedStatus)
	assert.Equal(t, int64(300), got.QuotedStatus.ID)
	assert.Equal(t, "the quoted context", got.QuotedStatus.Text)

	require.NotNil(t, tl.Get(200))

	// 300 is pool context only, 999 was marked but never delivered
	assert.Nil(t, tl.Get(300))
	assert.Nil(t, tl.Get(999))

	// pool users are kept either way
	require.NotNil(t, tl.User(16298441))
	require.NotNil(t, tl.User(8))
}

func TestResolveUsersFetchesOnlyMissing(t *testing.T) {
	var requested string
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/users/lookup.json", func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Query().Get("user_id")
		_, _ = w.Write([]byte(`[{"id": 7, "screen_name": "seven"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	r := newTestReconciler(t, srv, 1)
	r.putUser(&model.User{ID: 5, ScreenName: "known"})
	reply := int64(7)
	r.put(&model.Tweet{ID: 1, UserID: 5, InReplyToUserID: &reply})
	r.ResolveUsers(context.Background())

	assert.Equal(t, "7", requested)
	tl := r.Finalize()
	require.NotNil(t, tl.User(7))
	assert.Equal(t, "seven", tl.User(7).ScreenName)
}

func TestFinalizeDropsUnresolvedStubs(t *testing.T) {
	api := &fakeAPI{v1Lookup: func(string) string { return `[]` }}
	srv := api.server(t)

	r := newTestReconciler(t, srv, 1)
	r.put(&model.Tweet{ID: 1, Text: "resolved"})
	r.markRetweet(2)

	tl := r.Finalize()
	assert.Equal(t, 1, tl.Len())
	assert.Nil(t, tl.Get(2))
}

func TestSnapshotWriteIsIdempotent(t *testing.T) {
	tl := model.NewTimeline()
	tl.Set(&model.Tweet{ID: 2, UserID: 1, CreatedAt: 200, Text: "two"})
	tl.Set(&model.Tweet{ID: 1, UserID: 1, CreatedAt: 100, Text: "one & <b>"})
	tl.SetUser(&model.User{ID: 1, ScreenName: "a", URL: "https://example.com/a"})
	require.NoError(t, tl.SortBy("id", true))

	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.json")
	p2 := filepath.Join(dir, "two.json")
	require.NoError(t, WriteSnapshot(p1, tl))
	require.NoError(t, WriteSnapshot(p2, tl))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b1, b2))

	// slashes and html stay unescaped
	assert.Contains(t, string(b1), "https://example.com/a")
	assert.Contains(t, string(b1), "one & <b>")

	// round-trip reproduces the resolved ID set
	got, err := ReadSnapshot(p1)
	require.NoError(t, err)
	assert.Equal(t, tl.IDs(), got.IDs())
}
