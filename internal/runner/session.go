package runner

import (
	"sync"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/parser"
	"github.com/25smoking/Pallas/internal/progress"
)

type outcome struct {
	res *core.GroupedResult
	err error
}

// session 单次扫描的可变状态，随下一次扫描被替换而不是复用
type session struct {
	id       string
	reporter *progress.Reporter

	mu       sync.Mutex
	findings []core.Finding
	aborted  bool

	once sync.Once
	done chan outcome
}

func newSession(id string, obs progress.Observer) *session {
	return &session{
		id:       id,
		reporter: progress.NewReporter(id, obs),
		done:     make(chan outcome, 1),
	}
}

// handle 对一行输出分类。模板总数由 reporter 累积，分类器本身无状态。
// 进度在释放 s.mu 之后发送，观察者可以在回调中打断扫描。
func (s *session) handle(line string, acceptFindings bool) {
	c := parser.Classify(line)
	switch c.Kind {
	case parser.KindProgress:
		s.reporter.Total(c.Total)
	case parser.KindFinding:
		if !acceptFindings {
			return
		}
		s.mu.Lock()
		if s.aborted {
			s.mu.Unlock()
			return
		}
		s.findings = append(s.findings, c.Finding)
		s.mu.Unlock()

		// 与 Abort 竞争时该结果已计入打断结果，Aborted 会补齐计数
		s.reporter.Finding(c.Finding.Raw, c.Finding.Level())
	}
}

// abort 标记会话已打断并返回当前已收集的结果副本
func (s *session) abort() []core.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return append([]core.Finding(nil), s.findings...)
}

func (s *session) collected() []core.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Finding(nil), s.findings...)
}

func (s *session) resolve(res *core.GroupedResult, err error) {
	s.once.Do(func() {
		s.done <- outcome{res: res, err: err}
	})
}
