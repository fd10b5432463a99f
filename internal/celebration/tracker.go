package celebration

import (
	"celebrator/internal/milestone"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultTrackerSize = 10_000

// Tracker remembers the last statuses count seen per account so that
// milestones an account jumped over can be reported. Skipped milestones are
// never celebrated; the tracker only feeds logs.
type Tracker struct {
	milestones milestone.Set
	counts     *lru.Cache[string, int64]
}

// NewTracker returns a tracker holding at most size accounts.
func NewTracker(milestones milestone.Set, size int) (*Tracker, error) {
	if size <= 0 {
		size = defaultTrackerSize
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}
	return &Tracker{milestones: milestones, counts: cache}, nil
}

// Observe records count for accountID and returns the thresholds strictly
// between the previous observation and count.
func (t *Tracker) Observe(accountID string, count int64) []int64 {
	prev, ok := t.counts.Get(accountID)
	t.counts.Add(accountID, count)
	if !ok || count <= prev {
		return nil
	}
	return t.milestones.Crossed(prev, count)
}

// Len returns the number of tracked accounts.
func (t *Tracker) Len() int {
	return t.counts.Len()
}
