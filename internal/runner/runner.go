// Package runner owns the lifecycle of the external scanner process: spawn,
// streaming parse of its output, abort and post-exit completion.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/enrich"
	"github.com/25smoking/Pallas/internal/parser"
	"github.com/25smoking/Pallas/internal/progress"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrScanInProgress 同一时间只允许一个扫描
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrAborted        = errors.New("scan aborted")
	ErrInvalidRequest = errors.New("invalid scan request")
	ErrScannerFailed  = errors.New("scanner failed")
)

// Enricher 扫描结束后为结果补充 AI 解释
type Enricher interface {
	Enrich(ctx context.Context, findings []core.Finding)
}

// Controller 持有唯一的活动扫描。session 在整个 Start 调用期间存在，
// proc 只在扫描器进程存活期间非空。
type Controller struct {
	mu      sync.Mutex
	session *session
	proc    *os.Process

	reap sync.WaitGroup

	enricher    Enricher
	resultsDir  string
	diagnostics io.Writer
	log         *zap.SugaredLogger
	newID       func() string
}

type Option func(*Controller)

func WithEnricher(e Enricher) Option {
	return func(c *Controller) { c.enricher = e }
}

// WithResultsDir sets where pre-enrichment snapshots are written. Empty disables persistence.
func WithResultsDir(dir string) Option {
	return func(c *Controller) { c.resultsDir = dir }
}

// WithDiagnostics receives the scanner's stderr verbatim.
func WithDiagnostics(w io.Writer) Option {
	return func(c *Controller) {
		if w != nil {
			c.diagnostics = w
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

func New(opts ...Option) *Controller {
	c := &Controller{
		diagnostics: io.Discard,
		log:         zap.NewNop().Sugar(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active reports whether a scanner process handle is currently held.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil
}

// Wait blocks until every scanner process started by c has been reaped.
func (c *Controller) Wait() {
	c.reap.Wait()
}

// Start 启动扫描并阻塞到扫描结束、被打断或失败。
//
// 配置错误与进程错误会发送一次 failed 进度并返回空结果和错误；
// 打断时返回已收集到的结果和 ErrAborted；已有扫描在进行时返回 ErrScanInProgress。
func (c *Controller) Start(ctx context.Context, req core.ScanRequest, obs progress.Observer) (*core.GroupedResult, error) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return core.EmptyResult(), ErrScanInProgress
	}
	s := newSession(c.newID(), obs)
	c.session = s
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
	}()

	// 上下文已取消时不启动扫描器
	if err := ctx.Err(); err != nil {
		c.log.Warnf("扫描上下文已取消，未启动扫描器: %v", err)
		s.reporter.Aborted(0)
		return core.EmptyResult(), fmt.Errorf("%w: %w", ErrAborted, err)
	}

	if err := req.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		c.log.Errorf("扫描参数无效: %v", err)
		s.reporter.Failed(err)
		return core.EmptyResult(), err
	}

	args := req.Args()
	cmd := exec.Command(req.Executable, args...)
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return c.spawnFailed(s, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return c.spawnFailed(s, err)
	}

	c.log.Infof("启动扫描器: %s %v", req.Executable, args)
	if err := cmd.Start(); err != nil {
		return c.spawnFailed(s, err)
	}

	c.mu.Lock()
	c.proc = cmd.Process
	c.mu.Unlock()
	s.reporter.Starting()
	c.log.Infof("扫描器已启动, PID: %d, 扫描 ID: %s", cmd.Process.Pid, s.id)

	c.reap.Add(1)
	go c.run(ctx, s, cmd, stdout, stderr, req)

	select {
	case out := <-s.done:
		return out.res, out.err
	case <-ctx.Done():
		if c.Abort() {
			c.log.Warnf("扫描上下文已取消: %v", ctx.Err())
		}
		out := <-s.done
		return out.res, out.err
	}
}

// Abort 终止当前扫描器进程并立即清除句柄，不等待进程真正退出。
// 没有存活进程时返回 false。可以在进度回调中调用。
func (c *Controller) Abort() bool {
	c.mu.Lock()
	proc, s := c.proc, c.session
	if proc == nil || s == nil {
		c.mu.Unlock()
		return false
	}
	c.proc = nil
	c.mu.Unlock()

	findings := s.abort()
	if err := terminate(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.log.Warnf("终止扫描器失败, PID: %d: %v", proc.Pid, err)
	}
	c.log.Infof("扫描已打断, PID: %d, 已收集 %d 项", proc.Pid, len(findings))

	enrich.Clear(findings)
	s.reporter.Aborted(len(findings))
	s.resolve(core.Group(findings), ErrAborted)
	return true
}

func (c *Controller) spawnFailed(s *session, err error) (*core.GroupedResult, error) {
	err = fmt.Errorf("%w: %w", ErrScannerFailed, err)
	c.log.Errorf("扫描器启动失败: %v", err)
	s.reporter.Failed(err)
	return core.EmptyResult(), err
}

// run 消费输出直到两个流都结束，然后回收进程并完成扫描
func (c *Controller) run(ctx context.Context, s *session, cmd *exec.Cmd, stdout, stderr io.Reader, req core.ScanRequest) {
	defer c.reap.Done()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consume(s, stdout, nil, true)
	}()
	go func() {
		defer wg.Done()
		c.consume(s, stderr, c.diagnostics, false)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	c.mu.Lock()
	owned := c.proc == cmd.Process
	if owned {
		c.proc = nil
	}
	c.mu.Unlock()

	if !owned {
		// 已被 Abort 接管
		c.log.Debugf("扫描器已退出 (打断后), PID: %d", cmd.Process.Pid)
		return
	}

	code, err := exitStatus(waitErr)
	if err != nil {
		c.log.Errorf("扫描器异常退出, PID: %d: %v", cmd.Process.Pid, err)
		s.reporter.Failed(err)
		s.resolve(core.EmptyResult(), err)
		return
	}
	c.log.Infof("扫描器已退出, PID: %d, exit code: %d", cmd.Process.Pid, code)

	c.complete(ctx, s, req, code)
}

func (c *Controller) complete(ctx context.Context, s *session, req core.ScanRequest, code int) {
	findings := s.collected()
	enrich.Clear(findings)

	if c.resultsDir != "" {
		if path, err := report.SaveSnapshot(c.resultsDir, s.id, core.Group(findings)); err != nil {
			c.log.Errorf("保存扫描结果失败: %v", err)
		} else {
			c.log.Infof("扫描结果已保存: %s", path)
		}
	}

	if req.EnableAI && len(findings) > 0 {
		if c.enricher != nil {
			c.log.Infof("正在请求 AI 解释 %d 条结果...", len(findings))
			c.enricher.Enrich(ctx, findings)
		} else {
			c.log.Warn("已启用 AI 解释但未配置 AI 客户端，跳过")
		}
	}

	final := core.Group(findings)
	s.reporter.Finished(code)
	s.resolve(final, nil)
}

// consume 读取一个输出流。所有流都参与进度识别，只有 stdout 产生漏洞结果。
func (c *Controller) consume(s *session, r io.Reader, tee io.Writer, findings bool) {
	var framer parser.Framer
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if tee != nil {
				_, _ = tee.Write(buf[:n])
			}
			for _, line := range framer.Push(buf[:n]) {
				s.handle(line, findings)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.log.Debugf("读取扫描器输出失败: %v", err)
			}
			break
		}
	}
	if line, ok := framer.Flush(); ok {
		s.handle(line, findings)
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return -1, fmt.Errorf("%w: %s", ErrScannerFailed, exitErr.ProcessState.String())
	}
	return -1, fmt.Errorf("%w: %w", ErrScannerFailed, err)
}
