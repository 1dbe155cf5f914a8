// Package llmtest provides a scripted Completer for tests.
package llmtest

import (
	"context"
	"sync"
	"time"

	"github.com/Seednode/manzai/llm"
)

// Fake answers each operation with a canned reply or error and records
// every request it sees. It is safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	holds    map[string][]chan string
	requests []llm.Request
}

func New() *Fake {
	return &Fake{
		replies: make(map[string]string),
		errs:    make(map[string]error),
		holds:   make(map[string][]chan string),
	}
}

// Hold parks the next call for operation until the returned release is
// called with its reply. Holds queue up in call order. release reports
// whether the parked call received the reply within a few seconds.
func (f *Fake) Hold(operation string) (release func(text string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan string)
	f.holds[operation] = append(f.holds[operation], ch)

	return func(text string) bool {
		select {
		case ch <- text:
			return true
		case <-time.After(5 * time.Second):
			return false
		}
	}
}

// Reply sets the completion returned for operation.
func (f *Fake) Reply(operation, text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies[operation] = text
	delete(f.errs, operation)

	return f
}

// Fail makes every call for operation return err.
func (f *Fake) Fail(operation string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[operation] = err

	return f
}

func (f *Fake) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()

	if q := f.holds[req.Operation]; len(q) > 0 {
		ch := q[0]
		f.holds[req.Operation] = q[1:]
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		select {
		case text := <-ch:
			if text == "" {
				return "", llm.ErrEmptyResponse
			}
			return text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.errs[req.Operation]; ok {
		return "", err
	}

	text, ok := f.replies[req.Operation]
	if !ok || text == "" {
		return "", llm.ErrEmptyResponse
	}

	return text, nil
}

// Requests returns a copy of the requests seen so far.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)

	return out
}

// Count returns how many requests were made for operation.
func (f *Fake) Count(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, r := range f.requests {
		if r.Operation == operation {
			n++
		}
	}

	return n
}
