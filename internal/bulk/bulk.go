// Package bulk runs an operation over many independent items with a
// bounded number of workers.
package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// Operation represents a bulk operation configuration
type Operation struct {
	// Jobs bounds concurrency. Zero means one per CPU.
	Jobs int
	// ContinueOnError keeps going after a failed item. Otherwise items
	// not yet started are skipped.
	ContinueOnError bool
	// Progress receives a live progress line when it is a terminal.
	Progress io.Writer
	// Label prefixes the progress line.
	Label string
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	// Errors are in item order.
	Errors []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item. i is the item's
// index in the input.
type ItemFunc func(ctx context.Context, i int, item string) error

type status int

const (
	skipped status = iota
	succeeded
	failed
)

// Execute runs fn over items. Items start in input order.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}
	if len(items) == 0 {
		return result
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	statuses := make([]status, len(items))
	errs := make([]error, len(items))
	progress := newProgress(op.Progress, op.Label, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := fn(gctx, i, item)
			if err != nil {
				statuses[i], errs[i] = failed, err
			} else {
				statuses[i] = succeeded
			}
			progress.done(err == nil)

			if err != nil && !op.ContinueOnError {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	progress.clear()

	for i, s := range statuses {
		switch s {
		case succeeded:
			result.Succeeded++
		case failed:
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Item: items[i], Error: errs[i]})
		default:
			result.Skipped++
		}
	}
	return result
}

// Err summarizes failures as one error, or returns nil.
func (r *Result) Err(noun string) error {
	if r.Failed == 0 {
		return nil
	}
	if r.TotalItems == 1 {
		return r.Errors[0].Error
	}
	if r.Skipped > 0 {
		return fmt.Errorf("%d of %d %ss failed, %d skipped", r.Failed, r.TotalItems, noun, r.Skipped)
	}
	return fmt.Errorf("%d of %d %ss failed", r.Failed, r.TotalItems, noun)
}

// progress draws a single status line on a terminal.
type progress struct {
	mu     sync.Mutex
	w      io.Writer
	label  string
	total  int
	ok     int
	failed int
}

func newProgress(w io.Writer, label string, total int) *progress {
	if !isTerminal(w) {
		return &progress{}
	}
	if label == "" {
		label = "Processing"
	}
	return &progress{w: w, label: label, total: total}
}

func (p *progress) done(ok bool) {
	if p.w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.ok++
	} else {
		p.failed++
	}
	n := p.ok + p.failed
	fmt.Fprintf(p.w, "\r%s [%s] %d/%d (✓ %d ✗ %d)",
		p.label, progressBar(n*100/p.total, 20), n, p.total, p.ok, p.failed)
}

func (p *progress) clear() {
	if p.w != nil {
		fmt.Fprint(p.w, "\r\033[K")
	}
}

// progressBar creates a simple progress bar
func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
