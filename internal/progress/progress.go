// Package progress turns scan state transitions into updates for a single observer.
package progress

import (
	"sync"

	"github.com/25smoking/Pallas/internal/core"
)

// Observer 接收扫描进度。回调在读取扫描输出的协程中执行，不应阻塞。
// 回调执行时不持有任何锁，可以在回调中调用 Controller.Abort；
// 回调中产生的新进度会排在当前更新之后送达。
type Observer interface {
	OnProgress(core.ScanProgress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(core.ScanProgress)

func (f ObserverFunc) OnProgress(p core.ScanProgress) { f(p) }

type nopObserver struct{}

func (nopObserver) OnProgress(core.ScanProgress) {}

// Reporter 单次扫描会话的状态机:
// idle → starting → preparing → running → {finished | aborted | failed}
// 终止事件只发送一次，之后的调用全部忽略。
// 更新按发生顺序逐个送达，同一时刻只有一个协程在调用观察者。
type Reporter struct {
	mu       sync.Mutex
	obs      Observer
	state    core.ScanProgress
	pending  []core.ScanProgress
	draining bool
}

func NewReporter(scanID string, obs Observer) *Reporter {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Reporter{
		obs:   obs,
		state: core.ScanProgress{ScanID: scanID, Status: core.StatusIdle},
	}
}

// Snapshot returns a copy of the current state.
func (r *Reporter) Snapshot() core.ScanProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.state)
}

// Done reports whether a terminal update has been emitted.
func (r *Reporter) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status.Terminal()
}

func (r *Reporter) Starting() bool {
	return r.update(func(s *core.ScanProgress) bool {
		if s.Status != core.StatusIdle {
			return false
		}
		s.Status = core.StatusStarting
		s.Current = ""
		s.Level = ""
		return true
	})
}

// Total records a template count announced by the scanner. The first
// announcement moves the session to preparing; later ones only refresh the hint.
func (r *Reporter) Total(n int) bool {
	return r.update(func(s *core.ScanProgress) bool {
		s.Total = &n
		if s.Status == core.StatusIdle || s.Status == core.StatusStarting {
			s.Status = core.StatusPreparing
		}
		s.Current = ""
		s.Level = ""
		return true
	})
}

// Finding reports one more accepted finding with its severity level.
func (r *Reporter) Finding(raw, level string) bool {
	return r.update(func(s *core.ScanProgress) bool {
		s.Status = core.StatusRunning
		s.Current = raw
		s.Level = level
		s.Finished++
		return true
	})
}

func (r *Reporter) Finished(code int) bool {
	return r.update(func(s *core.ScanProgress) bool {
		s.Status = core.StatusFinished
		s.Current = ""
		s.Level = ""
		s.Code = &code
		return true
	})
}

// Aborted ends the session. collected is the number of findings kept by the
// caller; the reported count never goes below it.
func (r *Reporter) Aborted(collected int) bool {
	return r.update(func(s *core.ScanProgress) bool {
		s.Status = core.StatusAborted
		s.Current = ""
		s.Level = ""
		s.Finished = max(s.Finished, collected)
		return true
	})
}

func (r *Reporter) Failed(err error) bool {
	return r.update(func(s *core.ScanProgress) bool {
		code := -1
		s.Status = core.StatusFailed
		s.Current = ""
		s.Level = ""
		s.Code = &code
		if err != nil {
			s.Error = err.Error()
		}
		return true
	})
}

// update 在锁内修改状态并把快照放入待发送队列，然后在锁外依次通知观察者。
// 已有协程在发送时只入队，由该协程按顺序送达，回调中再次触发的更新也是如此。
func (r *Reporter) update(fn func(*core.ScanProgress) bool) bool {
	r.mu.Lock()
	if r.state.Status.Terminal() || !fn(&r.state) {
		r.mu.Unlock()
		return false
	}
	r.pending = append(r.pending, copyState(r.state))
	if r.draining {
		r.mu.Unlock()
		return true
	}
	r.draining = true
	r.mu.Unlock()

	r.drain()
	return true
}

func (r *Reporter) drain() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.draining = false
			r.mu.Unlock()
			return
		}
		next := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()

		r.obs.OnProgress(next)
	}
}

func copyState(s core.ScanProgress) core.ScanProgress {
	if s.Total != nil {
		total := *s.Total
		s.Total = &total
	}
	if s.Code != nil {
		code := *s.Code
		s.Code = &code
	}
	return s
}
