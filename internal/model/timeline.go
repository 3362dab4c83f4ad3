package model

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
)

// sortKeys are the fields a timeline can be ordered by.
var sortKeys = map[string]struct{}{
	"id":             {},
	"user_id":        {},
	"created_at":     {},
	"retweet_count":  {},
	"like_count":     {},
	"favorite_count": {},
	"reply_count":    {},
	"quote_count":    {},
}

// Timeline is the aggregate of tweets and the users referenced by them.
// Tweets are addressable by ID and keep an explicit order; after SortBy the
// key order and the iteration order agree, which downstream pagination
// relies on.
type Timeline struct {
	order  []int64
	tweets map[int64]*Tweet
	users  map[int64]*User
}

func NewTimeline() *Timeline {
	return &Timeline{
		tweets: map[int64]*Tweet{},
		users:  map[int64]*User{},
	}
}

// Set inserts or replaces a tweet. A replaced tweet keeps its position.
func (tl *Timeline) Set(t *Tweet) {
	if _, ok := tl.tweets[t.ID]; !ok {
		tl.order = append(tl.order, t.ID)
	}
	tl.tweets[t.ID] = t
}

func (tl *Timeline) Get(id int64) *Tweet {
	return tl.tweets[id]
}

func (tl *Timeline) Has(id int64) bool {
	_, ok := tl.tweets[id]
	return ok
}

func (tl *Timeline) Len() int {
	return len(tl.tweets)
}

// IDs returns the tweet IDs in current order.
func (tl *Timeline) IDs() []int64 {
	ids := make([]int64, len(tl.order))
	copy(ids, tl.order)
	return ids
}

// Tweets returns the tweets in current order.
func (tl *Timeline) Tweets() []*Tweet {
	out := make([]*Tweet, 0, len(tl.order))
	for _, id := range tl.order {
		out = append(out, tl.tweets[id])
	}
	return out
}

// SetUser inserts or replaces a user record, last write wins.
func (tl *Timeline) SetUser(u *User) {
	tl.users[u.ID] = u
}

func (tl *Timeline) User(id int64) *User {
	return tl.users[id]
}

func (tl *Timeline) UserCount() int {
	return len(tl.users)
}

// Users returns the user records ordered by ID.
func (tl *Timeline) Users() []*User {
	ids := make([]int64, 0, len(tl.users))
	for id := range tl.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*User, 0, len(ids))
	for _, id := range ids {
		out = append(out, tl.users[id])
	}
	return out
}

// SortBy orders the timeline by the given key, numerically. The sort is
// stable: ties keep their previous relative order.
func (tl *Timeline) SortBy(key string, descending bool) error {
	if _, ok := sortKeys[key]; !ok {
		return fmt.Errorf("invalid sort key: %s", key)
	}
	sort.SliceStable(tl.order, func(i, j int) bool {
		a := tl.tweets[tl.order[i]].sortValue(key)
		b := tl.tweets[tl.order[j]].sortValue(key)
		if descending {
			return a > b
		}
		return a < b
	})
	return nil
}

// TopBy returns a new timeline holding the n highest tweets by the given
// count key, sharing the user records with the receiver.
func (tl *Timeline) TopBy(key string, n int) (*Timeline, error) {
	top := &Timeline{tweets: map[int64]*Tweet{}, users: tl.users}
	ids := tl.IDs()
	cp := &Timeline{order: ids, tweets: tl.tweets}
	if err := cp.SortBy(key, true); err != nil {
		return nil, err
	}
	for _, id := range cp.order {
		if n >= 0 && len(top.order) >= n {
			break
		}
		top.Set(tl.tweets[id])
	}
	return top, nil
}

// snapshotDoc is the exported snapshot shape.
type snapshotDoc struct {
	Tweets []*Tweet `json:"tweets"`
	Users  []*User  `json:"users"`
}

// MarshalJSON exports the timeline as {"tweets":[...],"users":[...]}, tweets
// in current order, users ordered by ID.
func (tl *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotDoc{Tweets: tl.Tweets(), Users: tl.Users()})
}

// UnmarshalJSON loads a previously exported snapshot.
func (tl *Timeline) UnmarshalJSON(b []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	tl.order = nil
	tl.tweets = map[int64]*Tweet{}
	tl.users = map[int64]*User{}
	for _, t := range doc.Tweets {
		tl.Set(t)
	}
	for _, u := range doc.Users {
		tl.SetUser(u)
	}
	return nil
}
