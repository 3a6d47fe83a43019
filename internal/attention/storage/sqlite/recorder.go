package sqlite

import (
	"sync"

	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

// Recorder is an l5states.Sink that buffers emitted events for one session
// and writes them on Flush. After OnReset the next Flush replaces the
// session's stored events instead of appending.
type Recorder struct {
	store   *EventStore
	session string

	mu        sync.Mutex
	completed []l5states.CompletedEvent
	points    []l5states.PointEvent
	replace   bool
	flushed   int
}

var _ l5states.Sink = (*Recorder)(nil)

// NewRecorder returns a recorder writing into sessionID.
func NewRecorder(store *EventStore, sessionID string) *Recorder {
	return &Recorder{store: store, session: sessionID}
}

// SessionID returns the session the recorder writes into.
func (r *Recorder) SessionID() string { return r.session }

func (r *Recorder) OnCompleted(e l5states.CompletedEvent) {
	r.mu.Lock()
	r.completed = append(r.completed, e)
	r.mu.Unlock()
}

func (r *Recorder) OnPoint(p l5states.PointEvent) {
	r.mu.Lock()
	r.points = append(r.points, p)
	r.mu.Unlock()
}

func (r *Recorder) OnReset() {
	r.mu.Lock()
	r.completed = r.completed[:0]
	r.points = r.points[:0]
	r.replace = true
	r.mu.Unlock()
}

// Pending returns the number of buffered events not yet written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.points)
}

// Flushed returns the number of events written so far.
func (r *Recorder) Flushed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushed
}

// Flush writes buffered events. On error the buffer is kept so a later
// Flush can retry.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.replace {
		err = r.store.ReplaceSessionEvents(r.session, r.completed, r.points)
	} else {
		err = r.store.InsertEvents(r.session, r.completed, r.points)
	}
	if err != nil {
		return err
	}

	n := len(r.completed) + len(r.points)
	if r.replace {
		r.flushed = n
	} else {
		r.flushed += n
	}
	if n > 0 || r.replace {
		monitoring.Debugf("[store] session %s: flushed %d events (replace=%v)", r.session, n, r.replace)
	}
	r.completed = nil
	r.points = nil
	r.replace = false
	return nil
}
