package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/pipeline"
	"github.com/dvloznov/mail-ledger/internal/runs"
)

var base = time.Date(2024, time.June, 24, 9, 0, 0, 0, time.UTC)

func run(id string, minute int, status runs.Status) *runs.Run {
	return &runs.Run{
		BatchReport: pipeline.BatchReport{RunID: id, Started: base.Add(time.Duration(minute) * time.Minute)},
		Trigger:     runs.TriggerTicker,
		Status:      status,
	}
}

func TestStore_SaveGetLast(t *testing.T) {
	ctx := context.Background()
	s := NewStore(0)

	if _, err := s.Last(ctx); !errors.Is(err, apperrors.ErrRunNotFound) {
		t.Fatalf("Last() on empty store error = %v, want ErrRunNotFound", err)
	}

	for _, r := range []*runs.Run{
		run("b", 2, runs.StatusCompleted),
		run("a", 1, runs.StatusCompleted),
		run("c", 3, runs.StatusFailed),
	} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.RunID, err)
		}
	}

	last, err := s.Last(ctx)
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if last.RunID != "c" {
		t.Errorf("Last() = %s, want c", last.RunID)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Status = runs.StatusFailed
	again, _ := s.Get(ctx, "a")
	if again.Status != runs.StatusCompleted {
		t.Error("Get() returned a reference to stored data")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, apperrors.ErrRunNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	if err := NewStore(0).Save(context.Background(), &runs.Run{}); err == nil {
		t.Error("Save() accepted a run without id")
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore(0)
	for i := 0; i < 5; i++ {
		status := runs.StatusCompleted
		if i%2 == 1 {
			status = runs.StatusFailed
		}
		if err := s.Save(ctx, run(fmt.Sprintf("r%d", i), i, status)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter runs.Filter
		want   []string
	}{
		{"all newest first", runs.Filter{}, []string{"r4", "r3", "r2", "r1", "r0"}},
		{"failed only", runs.Filter{Status: runs.StatusFailed}, []string{"r3", "r1"}},
		{"limit", runs.Filter{Limit: 2}, []string{"r4", "r3"}},
		{"offset and limit", runs.Filter{Offset: 1, Limit: 2}, []string{"r3", "r2"}},
		{"offset past end", runs.Filter{Offset: 9}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d runs, want %d", len(got), len(tt.want))
			}
			for i, r := range got {
				if r.RunID != tt.want[i] {
					t.Errorf("List()[%d] = %s, want %s", i, r.RunID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_DropsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2)
	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, run(fmt.Sprintf("r%d", i), i, runs.StatusCompleted)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Get(ctx, "r0"); err == nil {
		t.Error("oldest run was kept")
	}
	list, _ := s.List(ctx, runs.Filter{})
	if len(list) != 2 {
		t.Errorf("List() len = %d, want 2", len(list))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Save(ctx, run(fmt.Sprintf("r%d", i), i, runs.StatusCompleted))
			_, _ = s.Last(ctx)
			_, _ = s.List(ctx, runs.Filter{Limit: 3})
		}(i)
	}
	wg.Wait()

	list, _ := s.List(ctx, runs.Filter{})
	if len(list) != 20 {
		t.Errorf("List() len = %d, want 20", len(list))
	}
}
