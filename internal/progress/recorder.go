package progress

import (
	"sync"

	"github.com/25smoking/Pallas/internal/core"
)

// Recorder 记录收到的全部进度更新
type Recorder struct {
	mu      sync.Mutex
	updates []core.ScanProgress
}

func (r *Recorder) OnProgress(p core.ScanProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

// Updates returns a copy of everything recorded so far.
func (r *Recorder) Updates() []core.ScanProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ScanProgress(nil), r.updates...)
}

// Last returns the most recent update.
func (r *Recorder) Last() (core.ScanProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return core.ScanProgress{}, false
	}
	return r.updates[len(r.updates)-1], true
}

// Count returns how many updates carried the given status.
func (r *Recorder) Count(status core.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.Status == status {
			n++
		}
	}
	return n
}

// Multi fans updates out to several observers in order.
func Multi(observers ...Observer) Observer {
	return ObserverFunc(func(p core.ScanProgress) {
		for _, o := range observers {
			if o != nil {
				o.OnProgress(p)
			}
		}
	})
}
