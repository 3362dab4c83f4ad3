package twitter

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/codemasher/dril-archive/internal/metrics"
)

// BatchSize is the ID ceiling imposed by every batched lookup endpoint.
const BatchSize = 100

// resetMargin is added on top of the rate limit reset time before retrying.
const resetMargin = 5 * time.Second

// ClientOptions configures a Client. Zero values fall back to the
// production defaults.
type ClientOptions struct {
	// APIToken is the bearer for the official endpoints, AdaptiveToken the
	// one captured from the web search, sent together with GuestToken.
	APIToken      string
	AdaptiveToken string
	GuestToken    string

	RetriesOn429 int
	PoliteDelay  time.Duration
	IdleWait     time.Duration

	BaseURL    string
	HTTPClient *http.Client

	// Cache, when set, is filled from successful responses. Reads are
	// gated separately so a run can be forced to hit the live API while
	// still recording what it fetched.
	Cache     *Cache
	ReadCache bool
	Logger    zerolog.Logger
}

// Client talks to the batch lookup and search endpoints. All requests run
// sequentially; the limiter enforces the polite delay between any two
// requests and the 429 policy sleeps until the advertised reset.
type Client struct {
	apiToken      string
	adaptiveToken string
	guestToken    string
	retriesOn429  int
	idleWait      time.Duration
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
	cache         *Cache
	readCache     bool
	log           zerolog.Logger
}

func NewClient(o ClientOptions) *Client {
	if o.RetriesOn429 <= 0 {
		o.RetriesOn429 = 5
	}
	if o.PoliteDelay <= 0 {
		o.PoliteDelay = 2 * time.Second
	}
	if o.IdleWait <= 0 {
		o.IdleWait = 10 * time.Second
	}
	if o.BaseURL == "" {
		o.BaseURL = "https://api.twitter.com"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiToken:      o.APIToken,
		adaptiveToken: o.AdaptiveToken,
		guestToken:    o.GuestToken,
		retriesOn429:  o.RetriesOn429,
		idleWait:      o.IdleWait,
		baseURL:       o.BaseURL,
		http:          o.HTTPClient,
		limiter:       rate.NewLimiter(rate.Every(o.PoliteDelay), 1),
		cache:         o.Cache,
		readCache:     o.ReadCache,
		log:           o.Logger,
	}
}

// request fires one GET against the API, serving from the cache when
// possible. On a 429 it sleeps until the advertised reset plus a margin and
// retries up to the configured cap; a missing or stale reset header falls
// back to a fixed idle wait. Any other non-200 is a permanent failure for
// this call.
func (c *Client) request(ctx context.Context, op, path string, params url.Values, adaptive bool) ([]byte, error) {
	key := CacheKey(op, orderedValues(params))

	if c.cache != nil && c.readCache {
		if body, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			metrics.CacheHits.Inc()
			return body, nil
		}
	}

	token := c.apiToken
	if adaptive {
		token = c.adaptiveToken
	}

	retries := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if adaptive {
			req.Header.Set("x-guest-token", c.guestToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		metrics.APIRequests.WithLabelValues(op).Inc()

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if c.cache != nil {
				if err := c.cache.Put(ctx, key, body); err != nil {
					c.log.Warn().Err(err).Str("endpoint", op).Msg("could not cache response")
				}
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests && retries < c.retriesOn429:
			retries++
			metrics.APIRetries.WithLabelValues(op).Inc()

			reset, _ := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64)
			now := time.Now().Unix()

			// header might be not set - just pause for a bit
			if reset < now {
				if err := sleepCtx(ctx, c.idleWait); err != nil {
					return nil, err
				}
				continue
			}

			wait := time.Duration(reset-now)*time.Second + resetMargin
			c.log.Info().Dur("sleep", wait).Str("endpoint", op).Msg("rate limited")
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}

		default:
			c.log.Error().Int("status", resp.StatusCode).Str("endpoint", op).Str("body", snippet(body)).Msg("request failed")
			return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, op)
		}
	}
}

// LookupStatuses fetches up to 100 tweets from the legacy batch lookup.
func (c *Client) LookupStatuses(ctx context.Context, ids []int64) ([]Status, error) {
	params := url.Values{
		"id":                   {joinIDs(ids)},
		"trim_user":            {"false"},
		"map":                  {"false"},
		"include_ext_alt_text": {"true"},
		"skip_status":          {"true"},
		"include_entities":     {"true"},
	}
	body, err := c.request(ctx, "data-v1-statuses-lookup", "/1.1/statuses/lookup.json", params, false)
	if err != nil {
		return nil, err
	}
	var statuses []Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("decode v1 lookup: %w", err)
	}
	return statuses, nil
}

// LookupTweetMeta fetches the minimal v2 fields needed to resolve retweet
// references: only the v2 endpoint reports the ID of the retweeted
// original.
func (c *Client) LookupTweetMeta(ctx context.Context, ids []int64) (*V2Response, error) {
	params := url.Values{
		"ids":          {joinIDs(ids)},
		"tweet.fields": {"author_id,referenced_tweets,conversation_id,created_at"},
	}
	body, err := c.request(ctx, "meta-v2-tweets", "/2/tweets", params, false)
	if err != nil {
		return nil, err
	}
	var resp V2Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode v2 meta: %w", err)
	}
	return &resp, nil
}

// LookupTweetsV2 fetches up to 100 tweets from the v2 batch lookup with the
// full field selectors, joining included media onto the statuses.
func (c *Client) LookupTweetsV2(ctx context.Context, ids []int64) (*V2Response, error) {
	params := url.Values{
		"ids":          {joinIDs(ids)},
		"expansions":   {"attachments.poll_ids,attachments.media_keys,author_id,entities.mentions.username,geo.place_id,in_reply_to_user_id,referenced_tweets.id,referenced_tweets.id.author_id"},
		"media.fields": {"duration_ms,height,media_key,preview_image_url,type,url,width,public_metrics,alt_text,variants"},
		"place.fields": {"contained_within,country,country_code,full_name,geo,id,name,place_type"},
		"poll.fields":  {"duration_minutes,end_datetime,id,options,voting_status"},
		"tweet.fields": {"attachments,author_id,conversation_id,created_at,entities,geo,id,in_reply_to_user_id,lang,public_metrics,possibly_sensitive,referenced_tweets,reply_settings,source,text,withheld"},
		"user.fields":  {"created_at,description,entities,id,location,name,pinned_tweet_id,profile_image_url,protected,public_metrics,url,username,verified,withheld"},
	}
	body, err := c.request(ctx, "data-v2-tweets", "/2/tweets", params, false)
	if err != nil {
		return nil, err
	}
	var resp V2Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode v2 lookup: %w", err)
	}
	JoinIncludedMedia(&resp)
	return &resp, nil
}

// LookupUsers fetches up to 100 user profiles from the legacy batch lookup.
func (c *Client) LookupUsers(ctx context.Context, ids []int64) ([]Profile, error) {
	params := url.Values{
		"user_id":          {joinIDs(ids)},
		"skip_status":      {"true"},
		"include_entities": {"false"},
	}
	body, err := c.request(ctx, "data-v1-users-lookup", "/1.1/users/lookup.json", params, false)
	if err != nil {
		return nil, err
	}
	var profiles []Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, fmt.Errorf("decode v1 users lookup: %w", err)
	}
	return profiles, nil
}

// SearchPage fetches one page of the legacy search. The caller follows
// search_metadata.next_results for subsequent pages.
func (c *Client) SearchPage(ctx context.Context, params url.Values) (*SearchResponse, error) {
	body, err := c.request(ctx, "data-v1-search", "/1.1/search/tweets.json", params, false)
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode v1 search: %w", err)
	}
	return &resp, nil
}

// AdaptivePage fetches one page of the adaptive web search. The parameter
// set mirrors the one the web client sends; the page counter keys the
// response cache.
func (c *Client) AdaptivePage(ctx context.Context, query, cursor string, page int) (*AdaptiveResponse, error) {
	params := url.Values{
		"include_profile_interstitial_type":    {"1"},
		"include_blocking":                     {"1"},
		"include_blocked_by":                   {"1"},
		"include_followed_by":                  {"1"},
		"include_want_retweets":                {"1"},
		"include_mute_edge":                    {"1"},
		"include_can_dm":                       {"1"},
		"include_can_media_tag":                {"1"},
		"include_ext_has_nft_avatar":           {"1"},
		"include_ext_is_blue_verified":         {"1"},
		"skip_status":                          {"1"},
		"cards_platform":                       {"Web-12"},
		"include_cards":                        {"1"},
		"include_ext_alt_text":                 {"true"},
		"include_ext_limited_action_results":   {"false"},
		"include_quote_count":                  {"true"},
		"include_reply_count":                  {"1"},
		"tweet_mode":                           {"extended"},
		"include_ext_collab_control":           {"true"},
		"include_entities":                     {"true"},
		"include_user_entities":                {"true"},
		"include_ext_media_color":              {"false"},
		"include_ext_media_availability":       {"true"},
		"include_ext_sensitive_media_warning":  {"true"},
		"include_ext_trusted_friends_metadata": {"true"},
		"send_error_codes":                     {"true"},
		"simple_quoted_tweet":                  {"true"},
		"q":                                    {query},
		"tweet_search_mode":                    {"live"},
		"count":                                {"100"},
		"query_source":                         {"typed_query"},
		"pc":                                   {"1"},
		"spelling_corrections":                 {"1"},
		"include_ext_edit_control":             {"true"},
		"ext":                                  {"mediaStats,highlightedLabel,hasNftAvatar,voiceInfo,enrichments,superFollowMetadata,unmentionInfo,editControl,collab_control,vibe"},
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	sum := md5.Sum([]byte(query))
	op := fmt.Sprintf("adaptive-%s-%d", hex.EncodeToString(sum[:]), page)

	body, err := c.request(ctx, op, "/2/search/adaptive.json", params, true)
	if err != nil {
		return nil, err
	}
	var resp AdaptiveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode adaptive search: %w", err)
	}
	return &resp, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// orderedValues flattens params into a deterministic value list for cache
// keying.
func orderedValues(params url.Values) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, params.Get(k))
	}
	return values
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
