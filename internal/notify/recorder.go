package notify

import (
	"context"
	"sync"
)

// Recorder captures notices for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	Notices []RecordedNotice
	Err     error
}

type RecordedNotice struct {
	Dest Destination
	Text string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, dest Destination, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Notices = append(r.Notices, RecordedNotice{Dest: dest, Text: text})
	return nil
}

func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Notices))
	for _, n := range r.Notices {
		out = append(out, n.Text)
	}
	return out
}
