// Package ledger persists which (milestone, account) celebrations were
// already published.
//
// The ledger is not safe for concurrent use. Has followed by Add is only
// correct because events are dispatched one at a time; a parallel dispatcher
// would need an atomic check-and-insert.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"celebrator/internal/infra/filestore"
	"celebrator/internal/mastodon"
	jsonx "celebrator/internal/shared/json"
)

// DefaultPath is where the ledger lives when no path is configured.
const DefaultPath = "./data/milestone_log.json"

const filePerm = 0o644

// Entry records one published celebration. LoggedAt is stored as unix
// seconds under the "createdAt" key to stay readable by older ledgers.
type Entry struct {
	AccountID   string `json:"accountId" yaml:"accountId"`
	StatusID    string `json:"statusId" yaml:"statusId"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	LoggedAt    int64  `json:"createdAt" yaml:"loggedAt"`
}

// LoggedTime returns LoggedAt as a time.
func (e Entry) LoggedTime() time.Time {
	return time.Unix(e.LoggedAt, 0)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used to stamp new entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger maps a milestone to the entries celebrated for it, in insertion order.
type Ledger struct {
	path    string
	entries map[int64][]Entry
	now     func() time.Time
}

// New returns an empty ledger persisted at path.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:    filestore.ResolvePath(path, DefaultPath),
		entries: make(map[int64][]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the resolved file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load replaces the in-memory state with the persisted file. A missing file
// leaves the ledger empty and is not an error.
func (l *Ledger) Load() error {
	data, err := filestore.ReadFileOrEmpty(l.path)
	if err != nil {
		return fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	if data == nil {
		l.entries = make(map[int64][]Entry)
		return nil
	}
	entries, err := decode(data)
	if err != nil {
		return &DeserializationError{Path: l.path, Err: err}
	}
	l.entries = entries
	return nil
}

// Save writes the full mapping, replacing the previous file atomically.
func (l *Ledger) Save() error {
	data, err := encode(l.entries)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := filestore.AtomicWrite(l.path, data, filePerm); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.path, err)
	}
	return nil
}

// Has reports whether accountID was already celebrated for milestone.
func (l *Ledger) Has(milestone int64, accountID string) bool {
	for _, e := range l.entries[milestone] {
		if e.AccountID == accountID {
			return true
		}
	}
	return false
}

// Add appends an entry for milestone. It does not deduplicate; call Has first.
func (l *Ledger) Add(milestone int64, acct mastodon.Account, statusID string) Entry {
	e := Entry{
		AccountID:   acct.ID,
		StatusID:    statusID,
		Username:    acct.Username,
		DisplayName: acct.DisplayName,
		LoggedAt:    l.now().Unix(),
	}
	l.entries[milestone] = append(l.entries[milestone], e)
	return e
}

// Len returns the total number of entries.
func (l *Ledger) Len() int {
	n := 0
	for _, list := range l.entries {
		n += len(list)
	}
	return n
}

// Milestones returns the milestones that have at least one entry, ascending.
func (l *Ledger) Milestones() []int64 {
	out := make([]int64, 0, len(l.entries))
	for m, list := range l.entries {
		if len(list) > 0 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns a copy of the entries recorded for milestone.
func (l *Ledger) Entries(milestone int64) []Entry {
	list := l.entries[milestone]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Duplicate describes a (milestone, account) pair recorded more than once.
type Duplicate struct {
	Milestone int64
	AccountID string
	Count     int
}

// Duplicates lists every key with more than one entry. A ledger written only
// through Has/Add never has any; hand-edited or merged files might.
func (l *Ledger) Duplicates() []Duplicate {
	var out []Duplicate
	for _, m := range l.Milestones() {
		counts := make(map[string]int)
		var order []string
		for _, e := range l.entries[m] {
			if counts[e.AccountID] == 0 {
				order = append(order, e.AccountID)
			}
			counts[e.AccountID]++
		}
		for _, id := range order {
			if counts[id] > 1 {
				out = append(out, Duplicate{Milestone: m, AccountID: id, Count: counts[id]})
			}
		}
	}
	return out
}

func decode(data []byte) (map[int64][]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}
	var raw map[string][]Entry
	if err := jsonx.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("top level value must be an object")
	}
	out := make(map[int64][]Entry, len(raw))
	for key, list := range raw {
		m, err := strconv.ParseInt(key, 10, 64)
		if err != nil || m < 1 {
			return nil, fmt.Errorf("invalid milestone key %q", key)
		}
		out[m] = list
	}
	return out, nil
}

func encode(entries map[int64][]Entry) ([]byte, error) {
	raw := make(map[string][]Entry, len(entries))
	for m, list := range entries {
		if len(list) == 0 {
			continue
		}
		raw[strconv.FormatInt(m, 10)] = list
	}
	return filestore.MarshalJSONIndent(raw)
}
