// Package milestone defines the post-count thresholds worth celebrating.
package milestone

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NewMember is the ledger key for the "first post" celebration. It is not a
// threshold and may not appear in a Set.
const NewMember = 1

var (
	ErrEmpty         = errors.New("milestone list cannot be empty")
	ErrNotIncreasing = errors.New("milestones must be strictly increasing")
	ErrReserved      = fmt.Errorf("milestones must be greater than %d", NewMember)
)

// Set is an ascending list of positive thresholds.
type Set struct {
	thresholds []int64
}

// Default returns the thresholds celebrated when none are configured.
func Default() Set {
	return Set{thresholds: []int64{
		100, 200, 500,
		1_000, 2_000, 5_000,
		10_000, 20_000, 50_000,
		100_000, 200_000, 500_000,
		1_000_000, 2_000_000, 5_000_000,
		10_000_000, 20_000_000, 50_000_000,
		100_000_000,
	}}
}

// New validates thresholds and returns them as a Set. The slice is copied.
func New(thresholds []int64) (Set, error) {
	if len(thresholds) == 0 {
		return Set{}, ErrEmpty
	}
	out := make([]int64, len(thresholds))
	copy(out, thresholds)
	for i, v := range out {
		if v <= NewMember {
			return Set{}, fmt.Errorf("%w: got %d", ErrReserved, v)
		}
		if i > 0 && v <= out[i-1] {
			return Set{}, fmt.Errorf("%w: %d follows %d", ErrNotIncreasing, v, out[i-1])
		}
	}
	return Set{thresholds: out}, nil
}

// Parse reads a comma separated list such as "100, 1_000, 5000".
func Parse(raw string) (Set, error) {
	fields := strings.Split(raw, ",")
	values := make([]int64, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseInt(strings.ReplaceAll(field, "_", ""), 10, 64)
		if err != nil {
			return Set{}, fmt.Errorf("invalid milestone %q: %w", field, err)
		}
		values = append(values, v)
	}
	return New(values)
}

// Contains reports whether count is exactly one of the thresholds.
func (s Set) Contains(count int64) bool {
	i := sort.Search(len(s.thresholds), func(i int) bool { return s.thresholds[i] >= count })
	return i < len(s.thresholds) && s.thresholds[i] == count
}

// Next returns the smallest threshold strictly above count.
func (s Set) Next(count int64) (int64, bool) {
	i := sort.Search(len(s.thresholds), func(i int) bool { return s.thresholds[i] > count })
	if i == len(s.thresholds) {
		return 0, false
	}
	return s.thresholds[i], true
}

// Crossed returns the thresholds t with from < t < to, i.e. the ones an
// account passed without being observed exactly on them.
func (s Set) Crossed(from, to int64) []int64 {
	var out []int64
	for _, t := range s.thresholds {
		if t > from && t < to {
			out = append(out, t)
		}
	}
	return out
}

// Values returns a copy of the thresholds.
func (s Set) Values() []int64 {
	out := make([]int64, len(s.thresholds))
	copy(out, s.thresholds)
	return out
}

// Len returns the number of thresholds.
func (s Set) Len() int {
	return len(s.thresholds)
}

func (s Set) String() string {
	parts := make([]string, len(s.thresholds))
	for i, v := range s.thresholds {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}
