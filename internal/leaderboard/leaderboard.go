package leaderboard

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the number of entries kept per profile.
const DefaultCapacity = 4

// Displaced is an entry evicted from a full profile board.
type Displaced struct {
	Profile Profile `json:"profile"`
	Entry   Entry   `json:"entry"`
}

// Recorder observes insertions; the monitor's metrics registry implements it.
type Recorder interface {
	EntryInserted(profile string)
}

// Stats are the board's running counters.
type Stats struct {
	Submissions   int `json:"submissions"`
	ConfigsTested int `json:"configs_tested"`
	Iterations    int `json:"iterations"`
}

// Leaderboard keeps the best entries per ranking profile. It is owned by one
// session and safe for concurrent submitters.
type Leaderboard struct {
	Capacity  int
	Scope     Scope
	SessionID string
	Recorder  Recorder

	mu      sync.Mutex
	boards  map[Profile][]*Entry
	seq     uint64
	stats   Stats
	updated time.Time
}

// New returns an empty board; capacity < 1 means DefaultCapacity.
func New(scope Scope, sessionID string, capacity int) *Leaderboard {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Leaderboard{
		Capacity:  capacity,
		Scope:     scope,
		SessionID: sessionID,
		boards:    make(map[Profile][]*Entry),
	}
}

// Submit offers the entry to every profile and returns what it evicted.
func (lb *Leaderboard) Submit(e Entry) []Displaced {
	scored := make([]Entry, 0, len(profileWeights))
	for _, p := range Profiles() {
		c := e
		c.Profile = p
		c.Score = p.Score(e.Metrics)
		scored = append(scored, c)
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.stats.Submissions++
	lb.seq++
	var out []Displaced
	for i := range scored {
		scored[i].seq = lb.seq
		d, _ := lb.insertLocked(scored[i])
		if d != nil {
			out = append(out, Displaced{Profile: d.Profile, Entry: *d})
		}
	}
	return out
}

// SubmitProfile offers the entry to a single profile. It returns the evicted
// entry, if any, and whether the entry was placed.
func (lb *Leaderboard) SubmitProfile(p Profile, e Entry) (*Entry, bool) {
	e.Profile = p
	e.Score = p.Score(e.Metrics)

	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.stats.Submissions++
	lb.seq++
	e.seq = lb.seq
	return lb.insertLocked(e)
}

// insertLocked places e on its profile board. A same-config entry is only
// replaced by a strictly higher score, and replacing it displaces nothing.
func (lb *Leaderboard) insertLocked(e Entry) (*Entry, bool) {
	if lb.boards == nil {
		lb.boards = make(map[Profile][]*Entry)
	}
	board := lb.boards[e.Profile]
	capacity := lb.Capacity
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	for i, cur := range board {
		if cur.ConfigID != e.ConfigID {
			continue
		}
		if e.Score <= cur.Score {
			log.Trace().Str("profile", string(e.Profile)).Str("config", e.ConfigID).
				Msg("Duplicate config rejected")
			return nil, false
		}
		board[i] = &e
		lb.commitLocked(e.Profile, board)
		log.Debug().Str("profile", string(e.Profile)).Str("config", e.ConfigID).
			Float64("score", e.Score).Msg("Replaced entry with better score")
		return nil, true
	}

	if len(board) < capacity {
		lb.commitLocked(e.Profile, append(board, &e))
		return nil, true
	}

	worst := board[len(board)-1]
	if e.Score <= worst.Score {
		return nil, false
	}
	board[len(board)-1] = &e
	lb.commitLocked(e.Profile, board)
	out := *worst
	out.Rank = 0
	log.Debug().Str("profile", string(e.Profile)).Str("config", e.ConfigID).
		Str("displaced", out.ConfigID).Float64("score", e.Score).Msg("Leaderboard entry displaced")
	return &out, true
}

func (lb *Leaderboard) commitLocked(p Profile, board []*Entry) {
	sort.SliceStable(board, func(i, j int) bool { return Compare(board[i], board[j]) < 0 })
	for i, e := range board {
		e.Rank = i + 1
	}
	lb.boards[p] = board
	lb.updated = time.Now()
	if lb.Recorder != nil {
		lb.Recorder.EntryInserted(string(p))
	}
}

// Top returns copies of the best n entries for a profile; n < 1 means all.
func (lb *Leaderboard) Top(p Profile, n int) []Entry {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	board := lb.boards[p]
	if n < 1 || n > len(board) {
		n = len(board)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = *board[i]
	}
	return out
}

// Best returns the top entry for a profile.
func (lb *Leaderboard) Best(p Profile) (Entry, bool) {
	top := lb.Top(p, 1)
	if len(top) == 0 {
		return Entry{}, false
	}
	return top[0], true
}

// Len is the number of entries on a profile board.
func (lb *Leaderboard) Len(p Profile) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.boards[p])
}

// RecordIteration bumps the iteration counter and adds tested configs.
func (lb *Leaderboard) RecordIteration(configs int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.stats.Iterations++
	lb.stats.ConfigsTested += configs
}

// Stats returns the current counters.
func (lb *Leaderboard) Stats() Stats {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.stats
}

// Snapshot is the persisted form of a board.
type Snapshot struct {
	Scope     Scope               `json:"scope"`
	SessionID string              `json:"session_id"`
	Capacity  int                 `json:"capacity"`
	Stats     Stats               `json:"stats"`
	UpdatedAt time.Time           `json:"updated_at"`
	Entries   map[Profile][]Entry `json:"entries"`
}

// Snapshot copies the board for persistence.
func (lb *Leaderboard) Snapshot() Snapshot {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	snap := Snapshot{
		Scope:     lb.Scope,
		SessionID: lb.SessionID,
		Capacity:  lb.Capacity,
		Stats:     lb.stats,
		UpdatedAt: lb.updated,
		Entries:   make(map[Profile][]Entry, len(lb.boards)),
	}
	for p, board := range lb.boards {
		entries := make([]Entry, len(board))
		for i, e := range board {
			entries[i] = *e
		}
		snap.Entries[p] = entries
	}
	return snap
}

// Restore replaces the board's contents with a snapshot. Insertion order
// follows the stored ranks; unknown profiles are ignored.
func (lb *Leaderboard) Restore(snap Snapshot) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.boards = make(map[Profile][]*Entry)
	lb.stats = snap.Stats
	lb.updated = snap.UpdatedAt
	if snap.Capacity > 0 {
		lb.Capacity = snap.Capacity
	}
	for _, p := range Profiles() {
		entries := snap.Entries[p]
		board := make([]*Entry, 0, len(entries))
		for i := range entries {
			e := entries[i]
			e.Profile = p
			lb.seq++
			e.seq = lb.seq
			board = append(board, &e)
		}
		sort.SliceStable(board, func(i, j int) bool { return Compare(board[i], board[j]) < 0 })
		if len(board) > lb.Capacity {
			board = board[:lb.Capacity]
		}
		for i, e := range board {
			e.Rank = i + 1
		}
		lb.boards[p] = board
	}
}
