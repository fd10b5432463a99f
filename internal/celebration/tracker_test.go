package celebration

import (
	"reflect"
	"testing"

	"celebrator/internal/milestone"
)

func TestTrackerReportsSkippedMilestones(t *testing.T) {
	tr, err := NewTracker(milestone.Default(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Observe("42", 99); got != nil {
		t.Fatalf("first observation must not report anything, got %v", got)
	}
	if got := tr.Observe("42", 101); !reflect.DeepEqual(got, []int64{100}) {
		t.Fatalf("expected [100], got %v", got)
	}
	if got := tr.Observe("42", 200); got != nil {
		t.Fatalf("landing exactly on a milestone is not a skip, got %v", got)
	}
	if got := tr.Observe("42", 150); got != nil {
		t.Fatalf("a lower count is not a skip, got %v", got)
	}
}

func TestTrackerEvictsOldestAccount(t *testing.T) {
	tr, err := NewTracker(milestone.Default(), 2)
	if err != nil {
		t.Fatal(err)
	}
	tr.Observe("a", 99)
	tr.Observe("b", 10)
	tr.Observe("c", 10)
	if tr.Len() != 2 {
		t.Fatalf("expected 2 tracked accounts, got %d", tr.Len())
	}
	if got := tr.Observe("a", 101); got != nil {
		t.Fatalf("evicted account must start fresh, got %v", got)
	}
}
