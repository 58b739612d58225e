package bulk

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSequentialExecution(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	var executed []string

	op := &Operation{Jobs: 1}
	result := op.Execute(context.Background(), items, func(_ context.Context, i int, item string) error {
		if items[i] != item {
			t.Errorf("index %d carries %q", i, item)
		}
		executed = append(executed, item)
		return nil
	})

	if result.TotalItems != 5 || result.Succeeded != 5 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	for i, item := range items {
		if executed[i] != item {
			t.Errorf("Order not preserved: expected %s at index %d, got %s", item, i, executed[i])
		}
	}
}

func TestParallelExecution(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var running, peak int32
	var mu sync.Mutex
	seen := make(map[string]bool)

	op := &Operation{Jobs: 4}
	result := op.Execute(context.Background(), items, func(_ context.Context, _ int, item string) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)

		mu.Lock()
		seen[item] = true
		mu.Unlock()
		return nil
	})

	if result.Succeeded != len(items) {
		t.Errorf("Expected %d successes, got %d", len(items), result.Succeeded)
	}
	if len(seen) != len(items) {
		t.Errorf("Expected all items to run, got %d", len(seen))
	}
	if peak > 4 {
		t.Errorf("Expected at most 4 concurrent items, saw %d", peak)
	}
}

func TestStopOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	op := &Operation{Jobs: 1}
	result := op.Execute(context.Background(), items, func(_ context.Context, _ int, item string) error {
		if item == "c" {
			return errors.New("boom")
		}
		return nil
	})

	if result.Succeeded != 2 || result.Failed != 1 || result.Skipped != 2 {
		t.Errorf("result = %+v", result)
	}
	if err := result.Err("item"); err == nil || err.Error() != "1 of 5 items failed, 2 skipped" {
		t.Errorf("Err() = %v", err)
	}
}

func TestContinueOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	op := &Operation{Jobs: 3, ContinueOnError: true}
	result := op.Execute(context.Background(), items, func(_ context.Context, i int, _ string) error {
		if i%2 == 1 {
			return errors.New("odd")
		}
		return nil
	})

	if result.Succeeded != 3 || result.Failed != 2 || result.Skipped != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Errors) != 2 || result.Errors[0].Item != "b" || result.Errors[1].Item != "d" {
		t.Errorf("errors should be in item order: %+v", result.Errors)
	}
	if err := result.Err("donor"); err == nil || err.Error() != "2 of 5 donors failed" {
		t.Errorf("Err() = %v", err)
	}
}

func TestSingleItemErrorIsReturnedAsIs(t *testing.T) {
	want := errors.New("no such file")
	op := &Operation{}
	result := op.Execute(context.Background(), []string{"x"}, func(context.Context, int, string) error {
		return want
	})
	if err := result.Err("file"); !errors.Is(err, want) {
		t.Errorf("Err() = %v, want %v", err, want)
	}
}

func TestEmptyItems(t *testing.T) {
	op := &Operation{Jobs: 2}
	result := op.Execute(context.Background(), nil, func(context.Context, int, string) error {
		t.Error("fn should not be called")
		return nil
	})
	if result.TotalItems != 0 || result.Err("item") != nil {
		t.Errorf("result = %+v", result)
	}
}

func TestNoProgressOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	op := &Operation{Jobs: 2, Progress: &buf}
	op.Execute(context.Background(), []string{"a", "b"}, func(context.Context, int, string) error { return nil })
	if buf.Len() != 0 {
		t.Errorf("progress written to non-terminal: %q", buf.String())
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "░░░░░░░░░░"},
		{50, "█████░░░░░"},
		{100, "██████████"},
		{150, "██████████"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.percent, 10); got != tt.want {
			t.Errorf("progressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}
