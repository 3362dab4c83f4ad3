package archive

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codemasher/dril-archive/internal/metrics"
	"github.com/codemasher/dril-archive/internal/model"
	"github.com/codemasher/dril-archive/internal/twitter"
)

type slotState int

const (
	slotUnresolved slotState = iota
	slotResolved
)

// slot tags a timeline entry as either a known-but-unfetched ID or a fully
// resolved tweet. Finalize drops whatever is still unresolved, so no stub
// can leak into the export.
type slot struct {
	state slotState
	tweet *model.Tweet
}

// Reconciler merges tweets from a prior snapshot, the CSV export and the
// live search endpoints into one working map keyed by tweet ID, then runs
// the repair passes that recover truncated retweets, backfill CSV-only IDs
// and fix improperly embedded links. All passes mutate the same state; the
// caller runs them in order on a single goroutine.
type Reconciler struct {
	log    zerolog.Logger
	client *twitter.Client

	// since bounds which tweets are in scope for retweet re-resolution and
	// the embedded link repair.
	since int64

	slots map[int64]slot
	users map[int64]*model.User

	// retweets holds the stub IDs pending the two-endpoint resolution,
	// backfill the CSV-only IDs pending a plain lookup.
	retweets   []int64
	retweetSet map[int64]struct{}
	backfill   []int64
}

func NewReconciler(client *twitter.Client, since int64, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		log:        log,
		client:     client,
		since:      since,
		slots:      map[int64]slot{},
		users:      map[int64]*model.User{},
		retweetSet: map[int64]struct{}{},
	}
}

func (r *Reconciler) put(t *model.Tweet) {
	r.slots[t.ID] = slot{state: slotResolved, tweet: t}
}

func (r *Reconciler) putUser(u *model.User) {
	r.users[u.ID] = u
}

func (r *Reconciler) has(id int64) bool {
	_, ok := r.slots[id]
	return ok
}

// markRetweet pools id for retweet resolution, replacing any resolved entry
// with an unresolved one.
func (r *Reconciler) markRetweet(id int64) {
	if _, ok := r.retweetSet[id]; ok {
		return
	}
	r.retweetSet[id] = struct{}{}
	r.retweets = append(r.retweets, id)
	r.slots[id] = slot{state: slotUnresolved}
}

// resolvedIDs returns the IDs of all resolved slots in ascending order.
func (r *Reconciler) resolvedIDs() []int64 {
	ids := make([]int64, 0, len(r.slots))
	for id, s := range r.slots {
		if s.state == slotResolved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IngestSnapshot loads a previously exported timeline. Tweets whose text
// still carries the retweet marker and whose timestamp falls inside the
// lookback window are pooled for re-resolution instead of being taken
// verbatim; everything else is inserted as already resolved.
func (r *Reconciler) IngestSnapshot(tl *model.Timeline, scanRetweets bool) {
	for _, t := range tl.Tweets() {
		if scanRetweets && t.IsRetweetText() && t.CreatedAt > r.since {
			r.markRetweet(t.ID)
			continue
		}
		r.put(t)
	}
	for _, u := range tl.Users() {
		r.putUser(u)
	}
	r.log.Info().Int("tweets", tl.Len()).Int("users", tl.UserCount()).Msg("ingested prior snapshot")
}

// IngestCSV merges the spreadsheet rows. Retweet rows join the resolution
// pool unless the ID is already accounted for; other unknown IDs join the
// backfill pool. CSV rows carry no usable body, only the ID matters here.
func (r *Reconciler) IngestCSV(rows []CSVRow) {
	for _, row := range rows {
		if row.ID == 0 {
			continue
		}
		if row.IsRetweet {
			if !r.has(row.ID) {
				r.markRetweet(row.ID)
			}
			continue
		}
		if !r.has(row.ID) {
			r.backfill = append(r.backfill, row.ID)
			r.slots[row.ID] = slot{state: slotUnresolved}
		}
	}
	r.log.Info().Int("rows", len(rows)).Int("retweets", len(r.retweets)).Int("backfill", len(r.backfill)).Msg("ingested csv export")
}

// IngestAPISearch walks the legacy search for the query, following the
// next_results continuation until exhausted. Search results never overwrite
// tweets already present, the earlier sources carry the richer bodies.
func (r *Reconciler) IngestAPISearch(ctx context.Context, query string) {
	params := url.Values{
		"q":                {query},
		"count":            {"100"},
		"include_entities": {"false"},
		"result_type":      {"mixed"},
	}

	for page := 0; ; page++ {
		resp, err := r.client.SearchPage(ctx, params)
		if err != nil {
			r.log.Warn().Err(err).Int("page", page).Msg("search request failed")
			return
		}
		if len(resp.Statuses) == 0 {
			return
		}

		for i := range resp.Statuses {
			s := &resp.Statuses[i]
			if s.User != nil {
				r.putUser(twitter.ParseUser(s.User))
			}
			if !r.has(s.ID.Int64()) {
				r.put(twitter.ParseTweet(s))
			}
		}

		r.log.Info().Int("page", page).Int("tweets", len(resp.Statuses)).Str("query", query).Msg("fetched search page")

		if resp.SearchMetadata == nil || resp.SearchMetadata.NextResults == "" {
			return
		}
		next, err := url.ParseQuery(strings.TrimPrefix(resp.SearchMetadata.NextResults, "?"))
		if err != nil {
			r.log.Warn().Err(err).Msg("invalid search continuation")
			return
		}
		params = next
	}
}

// IngestAdaptiveSearch walks the adaptive web search. Each page delivers a
// pool of tweets/users plus timeline instructions; only IDs the
// instructions mark as timeline entries are merged, the pool also carries
// quoted and unrelated context tweets. Quoted tweets found in the pool are
// embedded directly.
func (r *Reconciler) IngestAdaptiveSearch(ctx context.Context, query string) {
	pool := map[int64]*model.Tweet{}
	var marked []int64
	cursor := ""

	for page := 0; ; page++ {
		resp, err := r.client.AdaptivePage(ctx, query, cursor, page)
		if err != nil {
			r.log.Warn().Err(err).Int("page", page).Msg("adaptive search request failed")
			break
		}
		if len(resp.GlobalObjects.Tweets) == 0 {
			break
		}

		for key := range resp.GlobalObjects.Tweets {
			s := resp.GlobalObjects.Tweets[key]
			t := twitter.ParseTweet(&s)
			pool[t.ID] = t
		}
		for key := range resp.GlobalObjects.Users {
			p := resp.GlobalObjects.Users[key]
			r.putUser(twitter.ParseUser(&p))
		}

		cursor = ""
		for _, inst := range resp.Timeline.Instructions {
			switch {
			case inst.AddEntries != nil:
				for _, entry := range inst.AddEntries.Entries {
					switch {
					case strings.HasPrefix(entry.EntryID, "sq-I-t"):
						if entry.Content.Item != nil {
							marked = append(marked, entry.Content.Item.Content.Tweet.ID.Int64())
						}
					case entry.EntryID == "sq-cursor-bottom":
						if entry.Content.Operation != nil {
							cursor = entry.Content.Operation.Cursor.Value
						}
					}
				}
			case inst.ReplaceEntry != nil && inst.ReplaceEntry.EntryIDToReplace == "sq-cursor-bottom":
				if inst.ReplaceEntry.Entry != nil && inst.ReplaceEntry.Entry.Content.Operation != nil {
					cursor = inst.ReplaceEntry.Entry.Content.Operation.Cursor.Value
				}
			}
		}

		r.log.Info().Int("page", page).Int("pool", len(pool)).Str("query", query).Msg("fetched adaptive page")

		if cursor == "" {
			break
		}
	}

	for _, id := range marked {
		t, ok := pool[id]
		if !ok {
			continue
		}
		if t.QuotedStatusID != nil && t.QuotedStatus == nil {
			if quoted, ok := pool[*t.QuotedStatusID]; ok {
				t.QuotedStatus = quoted
			}
		}
		r.put(t)
	}
}

// ResolveRetweets runs the two-endpoint repair over the pooled retweet
// stubs. The v2 meta lookup is the only source for the retweeted original's
// ID; the v1 lookup then delivers the complete original body and the v2
// lookup patches the fields v1 gets wrong. Failed batches leave their IDs
// unresolved, the run continues.
func (r *Reconciler) ResolveRetweets(ctx context.Context) {
	refs, originals := r.fetchRetweetMeta(ctx)

	for i, ids := range chunk(originals) {
		v1, err := r.client.LookupStatuses(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not fetch retweet originals from v1")
			continue
		}
		v2, err := r.client.LookupTweetsV2(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not fetch retweet originals from v2")
			continue
		}

		for j := range v1 {
			s := &v1[j]
			if s.User != nil {
				r.putUser(twitter.ParseUser(s.User))
			}
			rtID, ok := refs[s.ID.Int64()]
			if !ok {
				continue
			}
			if rt := r.slots[rtID]; rt.state == slotResolved {
				rt.tweet.RetweetedStatus = twitter.ParseTweet(s)
			}
		}

		for j := range v2.Data {
			s := &v2.Data[j]
			rtID, ok := refs[s.ID.Int64()]
			if !ok {
				continue
			}
			rt := r.slots[rtID]
			if rt.state != slotResolved {
				continue
			}
			patch := twitter.ParseTweet(s)
			if rt.tweet.RetweetedStatus == nil {
				rt.tweet.RetweetedStatus = patch
				continue
			}
			mergeAuthoritative(rt.tweet.RetweetedStatus, patch)
		}

		r.log.Info().Int("batch", i).Int("tweets", len(ids)).Msg("resolved retweet originals")
	}
}

// fetchRetweetMeta resolves each stub ID to the ID of the retweeted
// original via the v2 meta lookup and creates the synthetic retweet status
// in its slot. Returns the original-to-stub mapping plus the original IDs
// in encounter order.
func (r *Reconciler) fetchRetweetMeta(ctx context.Context) (map[int64]int64, []int64) {
	refs := map[int64]int64{}
	var originals []int64

	for i, ids := range chunk(r.retweets) {
		resp, err := r.client.LookupTweetMeta(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not fetch retweet meta from v2")
			continue
		}

		for j := range resp.Data {
			s := &resp.Data[j]

			if len(s.ReferencedTweets) == 0 {
				r.log.Warn().Str("text", s.Text).Msg("does not look like a retweet")
				continue
			}

			origID := s.ReferencedTweets[0].ID.Int64()
			rtID := s.ID.Int64()

			stub := twitter.ParseTweet(s)
			stub.RetweetedStatusID = &origID
			r.put(stub)

			if _, ok := refs[origID]; !ok {
				originals = append(originals, origID)
			}
			refs[origID] = rtID
		}

		r.log.Info().Int("batch", i).Int("tweets", len(ids)).Msg("fetched retweet meta")
	}

	return refs, originals
}

// mergeAuthoritative patches onto dst the fields only the v2 endpoint
// reports correctly for a retweeted original. Everything else keeps the v1
// value.
func mergeAuthoritative(dst, src *model.Tweet) {
	dst.UserID = src.UserID
	dst.Text = src.Text
	dst.ConversationID = src.ConversationID
	dst.Place = src.Place
	dst.Coordinates = src.Coordinates
	dst.Geo = src.Geo
	dst.Media = src.Media
}

// BackfillCSV fetches full bodies for the CSV-only IDs and inserts them.
func (r *Reconciler) BackfillCSV(ctx context.Context) {
	for i, ids := range chunk(r.backfill) {
		v1, err := r.client.LookupStatuses(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not backfill csv tweets from v1")
			continue
		}
		for j := range v1 {
			s := &v1[j]
			if s.User != nil {
				r.putUser(twitter.ParseUser(s.User))
			}
			r.put(twitter.ParseTweet(s))
		}
		r.log.Info().Int("batch", i).Int("tweets", len(ids)).Msg("backfilled csv tweets")
	}
}

type repairKind int

const (
	repairPhoto repairKind = iota
	repairPhotoRT
	repairQuote
)

type repair struct {
	kind     repairKind
	match    string
	statusID int64
}

var (
	photoLinkRx  = regexp.MustCompile(`(?i)https://twitter\.com/[^/]+/status/(\d+)/photo/\d+\S*`)
	statusLinkRx = regexp.MustCompile(`(?i)https://twitter\.com/[^/]+/status/(\d+)\S*`)
)

// RepairEmbeddedLinks fixes tweets whose photo or quote reference is
// present as a plain text URL instead of a proper machine link. Matching
// status IDs are looked up in batches; photo links attach media, quote
// links attach a synthetic quoted status, and the raw URL is stripped from
// the text either way. Photo links take precedence since the generic
// status pattern matches them too.
func (r *Reconciler) RepairEmbeddedLinks(ctx context.Context) {
	repairs := map[int64]repair{}
	var order []int64

	for _, id := range r.resolvedIDs() {
		t := r.slots[id].tweet
		if t.CreatedAt < r.since {
			continue
		}

		rep, ok := matchEmbeddedLink(t)
		if !ok {
			continue
		}
		repairs[id] = rep
		order = append(order, id)
	}

	r.log.Info().Int("tweets", len(repairs)).Msg("matched tweets with embedded links")

	byStatus := map[int64][]int64{}
	var statusIDs []int64
	for _, id := range order {
		sid := repairs[id].statusID
		if _, ok := byStatus[sid]; !ok {
			statusIDs = append(statusIDs, sid)
		}
		byStatus[sid] = append(byStatus[sid], id)
	}

	for i, ids := range chunk(statusIDs) {
		v1, err := r.client.LookupStatuses(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not fetch embedded statuses from v1")
			continue
		}

		for j := range v1 {
			s := &v1[j]
			if s.User != nil {
				r.putUser(twitter.ParseUser(s.User))
			}
			for _, id := range byStatus[s.ID.Int64()] {
				r.applyRepair(id, repairs[id], s)
			}
		}

		r.log.Info().Int("batch", i).Int("tweets", len(ids)).Msg("fetched embedded statuses")
	}
}

// matchEmbeddedLink scans a tweet and its nested retweet for embedded
// photo/status URLs, returning at most one repair per tweet.
func matchEmbeddedLink(t *model.Tweet) (repair, bool) {
	if m := photoLinkRx.FindStringSubmatch(t.Text); m != nil {
		return repair{kind: repairPhoto, match: m[0], statusID: parseID(m[1])}, true
	}
	if t.RetweetedStatus != nil {
		if m := photoLinkRx.FindStringSubmatch(t.RetweetedStatus.Text); m != nil {
			return repair{kind: repairPhotoRT, match: m[0], statusID: parseID(m[1])}, true
		}
	}
	if m := statusLinkRx.FindStringSubmatch(t.Text); m != nil {
		return repair{kind: repairQuote, match: m[0], statusID: parseID(m[1])}, true
	}
	return repair{}, false
}

func (r *Reconciler) applyRepair(id int64, rep repair, s *twitter.Status) {
	sl := r.slots[id]
	if sl.state != slotResolved {
		return
	}
	t := sl.tweet
	resolved := twitter.ParseTweet(s)

	switch rep.kind {
	case repairQuote:
		if t.QuotedStatusID == nil || t.QuotedStatus == nil {
			t.QuotedStatusID = &resolved.ID
			t.QuotedStatus = resolved
		}
		t.Text = strings.ReplaceAll(t.Text, rep.match, "")

	case repairPhoto:
		t.Media = resolved.Media
		t.Text = strings.ReplaceAll(t.Text, rep.match, "")

	case repairPhotoRT:
		if t.RetweetedStatus == nil {
			return
		}
		t.RetweetedStatus.Media = resolved.Media
		t.RetweetedStatus.Text = strings.ReplaceAll(t.RetweetedStatus.Text, rep.match, "")
	}
}

// ResolveUsers fetches profiles for every author, reply target and retweet
// author referenced by the timeline that is not yet known.
func (r *Reconciler) ResolveUsers(ctx context.Context) {
	seen := map[int64]struct{}{}
	var missing []int64

	want := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if _, ok := r.users[id]; !ok {
			missing = append(missing, id)
		}
	}

	for _, id := range r.resolvedIDs() {
		t := r.slots[id].tweet
		want(t.UserID)
		if t.InReplyToUserID != nil {
			want(*t.InReplyToUserID)
		}
		if t.RetweetedStatus != nil {
			want(t.RetweetedStatus.UserID)
		}
	}

	for i, ids := range chunk(missing) {
		profiles, err := r.client.LookupUsers(ctx, ids)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not fetch user profiles from v1")
			continue
		}
		for j := range profiles {
			r.putUser(twitter.ParseUser(&profiles[j]))
		}
		r.log.Info().Int("batch", i).Int("users", len(profiles)).Msg("fetched user profiles")
	}
}

// Finalize drops every slot still unresolved and assembles the timeline.
// A dropped stub is a data loss case, the original is unrecoverable.
func (r *Reconciler) Finalize() *model.Timeline {
	tl := model.NewTimeline()
	dropped := 0

	for _, id := range r.resolvedIDs() {
		tl.Set(r.slots[id].tweet)
	}
	for id, s := range r.slots {
		if s.state == slotUnresolved {
			r.log.Warn().Int64("id", id).Msg("dropping unresolved tweet")
			dropped++
		}
	}
	if dropped > 0 {
		metrics.DroppedStubs.Add(float64(dropped))
	}

	for _, u := range r.users {
		tl.SetUser(u)
	}

	r.log.Info().Int("tweets", tl.Len()).Int("users", tl.UserCount()).Int("dropped", dropped).Msg("finalized timeline")

	return tl
}

func parseID(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
