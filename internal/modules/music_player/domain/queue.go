package domain

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Queue holds the pending tracks of a guild, the track currently selected for
// playback, and the mode used to pick the next one.
// Every method is atomic with respect to every other.
type Queue struct {
	mu      sync.Mutex
	pending []Track
	current *Track
	mode    QueueMode
	rng     *rand.Rand // nil uses the global source
}

// QueueSnapshot is a point-in-time copy of a Queue.
type QueueSnapshot struct {
	Current *Track
	Pending []Track
	Mode    QueueMode
}

// QueueMatch is a pending track matched by Find, with its 0-based position.
type QueueMatch struct {
	Index int
	Track Track
}

// NewQueue creates a new empty Queue in normal mode.
func NewQueue() *Queue {
	return &Queue{
		pending: make([]Track, 0),
		mode:    QueueModeNormal,
	}
}

// NewQueueWithRand creates a Queue whose shuffle picks come from rng.
func NewQueueWithRand(rng *rand.Rand) *Queue {
	q := NewQueue()
	q.rng = rng
	return q
}

// Enqueue appends tracks to the tail in the given order and returns the new
// pending length.
func (q *Queue) Enqueue(tracks ...Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, tracks...)
	return len(q.pending)
}

// Next selects the next track according to the mode, removes it from the
// pending list and makes it current. When nothing is pending, current is
// cleared and false is returned.
func (q *Queue) Next() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.current = nil
		return Track{}, false
	}

	var index int
	switch q.mode {
	case QueueModeNormal, QueueModeLoop:
		index = 0
	case QueueModeShuffle:
		index = q.intN(len(q.pending))
	}

	track := q.pending[index]
	q.pending = append(q.pending[:index], q.pending[index+1:]...)
	q.current = &track
	return track, true
}

func (q *Queue) intN(n int) int {
	if q.rng != nil {
		return q.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Current returns the track selected for playback.
func (q *Queue) Current() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return Track{}, false
	}
	return *q.current, true
}

// ClearCurrent forgets the current track without touching pending tracks.
func (q *Queue) ClearCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.current = nil
}

// RequeueCurrentIfLoop appends the current track to the tail when the queue is
// in loop mode. Returns true if the track was re-queued.
func (q *Queue) RequeueCurrentIfLoop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.mode != QueueModeLoop || q.current == nil {
		return false
	}
	q.pending = append(q.pending, *q.current)
	return true
}

// Clear drops every pending track and returns how many were dropped.
// The current track is untouched.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	q.pending = make([]Track, 0)
	return n
}

// SkipPending passes over up to n tracks at the head of the pending list and
// returns them. In loop mode they move to the tail, wrapping around the list
// when n exceeds it; in the other modes they are dropped.
func (q *Queue) SkipPending(n int) []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.pending) == 0 {
		return nil
	}

	if q.mode == QueueModeLoop {
		n %= len(q.pending)
		skipped := append([]Track(nil), q.pending[:n]...)
		q.pending = append(q.pending[n:], skipped...)
		return skipped
	}

	n = min(n, len(q.pending))
	skipped := append([]Track(nil), q.pending[:n]...)
	q.pending = append(q.pending[:0:0], q.pending[n:]...)
	return skipped
}

// RemoveAt removes the pending track at the 0-based index.
// Returns ErrIndexOutOfRange, leaving the queue unchanged, when index does
// not name a pending track.
func (q *Queue) RemoveAt(index int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.pending) {
		return Track{}, ErrIndexOutOfRange
	}

	track := q.pending[index]
	q.pending = append(q.pending[:index], q.pending[index+1:]...)
	return track, nil
}

// SetMode changes the selection rule for subsequent Next calls.
// Pending order is not touched.
func (q *Queue) SetMode(mode QueueMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.mode = mode
}

// Mode returns the current queue mode.
func (q *Queue) Mode() QueueMode {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mode
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Pending returns a copy of the pending tracks.
func (q *Queue) Pending() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]Track, len(q.pending))
	copy(result, q.pending)
	return result
}

// Find returns pending tracks whose title contains query, ignoring case.
func (q *Queue) Find(query string) []QueueMatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []QueueMatch
	for i, track := range q.pending {
		if strings.Contains(strings.ToLower(track.Title), query) {
			matches = append(matches, QueueMatch{Index: i, Track: track})
		}
	}
	return matches
}

// Snapshot returns a consistent copy of the whole queue.
func (q *Queue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := QueueSnapshot{
		Pending: make([]Track, len(q.pending)),
		Mode:    q.mode,
	}
	copy(snapshot.Pending, q.pending)
	if q.current != nil {
		current := *q.current
		snapshot.Current = &current
	}
	return snapshot
}
