package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/progress"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// 测试二进制在设置了该环境变量时充当扫描器
const (
	fakeEnv   = "PALLAS_FAKE_SCANNER"
	markerEnv = "PALLAS_FAKE_MARKER"
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeEnv); mode != "" {
		os.Exit(fakeScanner(mode))
	}
	os.Exit(m.Run())
}

func fakeScanner(mode string) int {
	switch mode {
	case "high5":
		fmt.Fprintln(os.Stderr, "[INF] Current nuclei version: v3.3.7")
		fmt.Println("[INF] Executing 42 signed templates from projectdiscovery/nuclei-templates")
		for i := range 5 {
			fmt.Printf("[tmpl-%d] [http] [high] http://example.com/%d\n", i, i)
		}
		return 0
	case "argv":
		fmt.Printf("[argv] [cli] [info] %s\n", strings.Join(os.Args[1:], " "))
		return 3
	case "stderr":
		fmt.Fprintln(os.Stderr, "[INF] Executing 7 signed templates")
		fmt.Fprintln(os.Stderr, "[ignored] [http] [critical] http://stderr.example.com")
		os.Stdout.WriteString("[split] [http] [cri")
		time.Sleep(20 * time.Millisecond)
		os.Stdout.WriteString("tical] http://split.example.com\n")
		os.Stdout.WriteString("[tail] [http] [low] http://tail.example.com")
		return 0
	case "hang":
		fmt.Println("[INF] Executing 3 signed templates")
		fmt.Println("[early] [http] [medium] http://example.com")
		time.Sleep(time.Minute)
		return 0
	case "marker":
		_ = os.WriteFile(os.Getenv(markerEnv), []byte("started"), 0o644)
		return 0
	case "selfkill":
		fmt.Println("[gone] [http] [high] http://example.com")
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Kill()
		time.Sleep(time.Minute)
		return 0
	}
	return 2
}

func fakeRequest(t *testing.T, mode string) core.ScanRequest {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(fakeEnv, mode)
	return core.ScanRequest{Executable: exe}
}

func newController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	c := New(opts...)
	t.Cleanup(c.Wait)
	t.Cleanup(func() { c.Abort() })
	return c
}

type result struct {
	res *core.GroupedResult
	err error
}

func startAsync(c *Controller, ctx context.Context, req core.ScanRequest, obs progress.Observer) <-chan result {
	ch := make(chan result, 1)
	go func() {
		res, err := c.Start(ctx, req, obs)
		ch <- result{res, err}
	}()
	return ch
}

// runningSignal closes the returned channel on the first running update.
func runningSignal(rec *progress.Recorder) (progress.Observer, <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return progress.Multi(rec, progress.ObserverFunc(func(p core.ScanProgress) {
		if p.Status == core.StatusRunning {
			once.Do(func() { close(ch) })
		}
	})), ch
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(20 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func runningLevel(rec *progress.Recorder) string {
	for _, u := range rec.Updates() {
		if u.Status == core.StatusRunning {
			return u.Level
		}
	}
	return ""
}

func snapshots(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "scan_*.json"))
	require.NoError(t, err)
	return files
}

func TestStartCollectsFindings(t *testing.T) {
	dir := t.TempDir()
	c := newController(t, WithResultsDir(dir))
	c.newID = func() string { return "0123456789abcdef" }
	rec := &progress.Recorder{}

	res, err := c.Start(context.Background(), fakeRequest(t, "high5"), rec)
	require.NoError(t, err)
	assert.False(t, c.Active())

	require.Len(t, res.Results, 5)
	assert.Len(t, res.Grouped[core.SeverityHigh], 5)
	assert.Equal(t, "[tmpl-0] [http] [high] http://example.com/0", res.Results[0].Raw)
	for _, f := range res.Results {
		assert.True(t, f.AI.Empty())
	}

	updates := rec.Updates()
	require.NotEmpty(t, updates)
	assert.Equal(t, core.StatusStarting, updates[0].Status)
	assert.Equal(t, 1, rec.Count(core.StatusPreparing))
	assert.Equal(t, 1, rec.Count(core.StatusFinished))
	for _, u := range updates {
		assert.Equal(t, "0123456789abcdef", u.ScanID)
	}

	last, _ := rec.Last()
	assert.Equal(t, core.StatusFinished, last.Status)
	assert.Equal(t, 5, last.Finished)
	require.NotNil(t, last.Total)
	assert.Equal(t, 42, *last.Total)
	require.NotNil(t, last.Code)
	assert.Equal(t, 0, *last.Code)

	files := snapshots(t, dir)
	require.Len(t, files, 1)
	assert.Contains(t, filepath.Base(files[0]), "_01234567.json")
}

func TestStartEmptyExecutable(t *testing.T) {
	dir := t.TempDir()
	c := newController(t, WithResultsDir(dir))
	rec := &progress.Recorder{}

	res, err := c.Start(context.Background(), core.ScanRequest{}, rec)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, core.ErrExecutableNotFound)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"grouped":{},"results":[]}`, string(data))

	updates := rec.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, core.StatusFailed, updates[0].Status)
	assert.NotEmpty(t, updates[0].Error)
	assert.Empty(t, snapshots(t, dir))
	assert.False(t, c.Active())
}

func TestStartSpawnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec format error is unix specific")
	}
	path := filepath.Join(t.TempDir(), "nuclei")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o755))

	c := newController(t)
	rec := &progress.Recorder{}
	res, err := c.Start(context.Background(), core.ScanRequest{Executable: path}, rec)
	require.ErrorIs(t, err, ErrScannerFailed)
	assert.Empty(t, res.Results)

	updates := rec.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, core.StatusFailed, updates[0].Status)
}

func TestArgumentsAndExitCode(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "cve"), 0o755))

	req := fakeRequest(t, "argv")
	req.Target = "http://target.example.com"
	req.TemplateRoot = root
	req.Templates = []string{"cve"}
	req.Concurrency = 3
	req.Severity = "high"

	c := newController(t)
	rec := &progress.Recorder{}
	res, err := c.Start(context.Background(), req, rec)
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	raw := res.Results[0].Raw
	assert.Contains(t, raw, "-u http://target.example.com")
	assert.Contains(t, raw, "-t "+filepath.Join(root, "cve"))
	assert.Contains(t, raw, "-c 3")
	assert.Contains(t, raw, "-severity high")
	assert.True(t, strings.HasSuffix(raw, "-nc"))
	assert.NotContains(t, raw, "-timeout")

	last, _ := rec.Last()
	assert.Equal(t, core.StatusFinished, last.Status)
	require.NotNil(t, last.Code)
	assert.Equal(t, 3, *last.Code)
}

func TestStderrAndFragments(t *testing.T) {
	var diag bytes.Buffer
	c := newController(t, WithDiagnostics(&diag))
	rec := &progress.Recorder{}

	res, err := c.Start(context.Background(), fakeRequest(t, "stderr"), rec)
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "[split] [http] [critical] http://split.example.com", res.Results[0].Raw)
	assert.Equal(t, "[tail] [http] [low] http://tail.example.com", res.Results[1].Raw)
	assert.Empty(t, res.Grouped[core.SeverityHigh])

	last, _ := rec.Last()
	require.NotNil(t, last.Total)
	assert.Equal(t, 7, *last.Total)
	assert.Equal(t, 2, last.Finished)
	assert.Contains(t, diag.String(), "Executing 7 signed templates")
}

func TestAbort(t *testing.T) {
	dir := t.TempDir()
	c := newController(t, WithResultsDir(dir))
	rec := &progress.Recorder{}
	obs, running := runningSignal(rec)

	done := startAsync(c, context.Background(), fakeRequest(t, "hang"), obs)
	waitFor(t, running)
	require.True(t, c.Active())

	assert.True(t, c.Abort())
	assert.False(t, c.Active())
	assert.False(t, c.Abort())

	out := waitFor(t, done)
	require.ErrorIs(t, out.err, ErrAborted)
	require.Len(t, out.res.Results, 1)
	assert.Equal(t, core.SeverityMedium, out.res.Results[0].Severity)
	assert.Equal(t, core.SeverityMedium, runningLevel(rec))
	assert.True(t, out.res.Results[0].AI.Empty())

	c.Wait()
	assert.Equal(t, 1, rec.Count(core.StatusAborted))
	assert.Zero(t, rec.Count(core.StatusFinished))
	assert.Zero(t, rec.Count(core.StatusFailed))
	last, _ := rec.Last()
	assert.Equal(t, core.StatusAborted, last.Status)
	assert.Empty(t, snapshots(t, dir))
}

func TestAbortWithoutScan(t *testing.T) {
	c := newController(t)
	assert.False(t, c.Abort())
	assert.False(t, c.Active())
}

func TestContextCancelAborts(t *testing.T) {
	c := newController(t)
	rec := &progress.Recorder{}
	obs, running := runningSignal(rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := startAsync(c, ctx, fakeRequest(t, "hang"), obs)
	waitFor(t, running)
	cancel()

	out := waitFor(t, done)
	require.ErrorIs(t, out.err, ErrAborted)
	assert.Len(t, out.res.Results, 1)
	c.Wait()
	assert.Equal(t, 1, rec.Count(core.StatusAborted))
}

func TestCancelledContextSpawnsNothing(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	req := fakeRequest(t, "marker")
	t.Setenv(markerEnv, marker)

	c := newController(t)
	rec := &progress.Recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Start(ctx, req, rec)
	require.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Grouped)
	assert.False(t, c.Active())

	updates := rec.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, core.StatusAborted, updates[0].Status)

	c.Wait()
	assert.NoFileExists(t, marker)

	// 同一个控制器之后仍可正常扫描
	res, err = c.Start(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.FileExists(t, marker)
}

func TestAbortFromObserver(t *testing.T) {
	c := newController(t)
	rec := &progress.Recorder{}
	aborted := make(chan bool, 1)
	var once sync.Once
	obs := progress.Multi(rec, progress.ObserverFunc(func(p core.ScanProgress) {
		if p.Status == core.StatusRunning {
			once.Do(func() { aborted <- c.Abort() })
		}
	}))

	done := startAsync(c, context.Background(), fakeRequest(t, "hang"), obs)
	assert.True(t, waitFor(t, aborted))

	out := waitFor(t, done)
	require.ErrorIs(t, out.err, ErrAborted)
	require.Len(t, out.res.Results, 1)
	assert.False(t, c.Active())

	c.Wait()
	assert.Equal(t, 1, rec.Count(core.StatusAborted))
	last, _ := rec.Last()
	assert.Equal(t, core.StatusAborted, last.Status)
	assert.Equal(t, 1, last.Finished)
}

func TestConcurrentStartRejected(t *testing.T) {
	c := newController(t)
	rec := &progress.Recorder{}
	obs, running := runningSignal(rec)

	done := startAsync(c, context.Background(), fakeRequest(t, "hang"), obs)
	waitFor(t, running)

	second := &progress.Recorder{}
	res, err := c.Start(context.Background(), fakeRequest(t, "high5"), second)
	require.ErrorIs(t, err, ErrScanInProgress)
	assert.Empty(t, res.Results)
	assert.Empty(t, second.Updates())
	assert.True(t, c.Active())

	require.True(t, c.Abort())
	out := waitFor(t, done)
	assert.ErrorIs(t, out.err, ErrAborted)
}

func TestKilledBySignalFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process kill reports an exit code on windows")
	}
	c := newController(t)
	rec := &progress.Recorder{}

	res, err := c.Start(context.Background(), fakeRequest(t, "selfkill"), rec)
	require.ErrorIs(t, err, ErrScannerFailed)
	assert.Empty(t, res.Results)
	assert.Equal(t, 1, rec.Count(core.StatusFailed))
	assert.Zero(t, rec.Count(core.StatusFinished))

	last, _ := rec.Last()
	require.NotNil(t, last.Code)
	assert.Equal(t, -1, *last.Code)
}

func TestSnapshotFailureIsLogged(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	zcore, logs := observer.New(zap.ErrorLevel)
	c := newController(t, WithResultsDir(filepath.Join(blocker, "results")), WithLogger(zap.New(zcore).Sugar()))
	rec := &progress.Recorder{}

	res, err := c.Start(context.Background(), fakeRequest(t, "high5"), rec)
	require.NoError(t, err)
	assert.Len(t, res.Results, 5)
	assert.Equal(t, 1, logs.FilterMessageSnippet("保存扫描结果失败").Len())

	last, _ := rec.Last()
	assert.Equal(t, core.StatusFinished, last.Status)
}

type enricherFunc func(ctx context.Context, findings []core.Finding)

func (fn enricherFunc) Enrich(ctx context.Context, findings []core.Finding) { fn(ctx, findings) }

func TestEnrichment(t *testing.T) {
	var calls int
	explain := enricherFunc(func(_ context.Context, findings []core.Finding) {
		calls++
		for i := range findings {
			findings[i].AI = core.AIAnnotation{
				Description: "about " + findings[i].Name(),
				Remediation: "patch",
			}
		}
	})

	t.Run("enabled", func(t *testing.T) {
		calls = 0
		dir := t.TempDir()
		c := newController(t, WithResultsDir(dir), WithEnricher(explain))
		req := fakeRequest(t, "high5")
		req.EnableAI = true

		res, err := c.Start(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		require.Len(t, res.Grouped[core.SeverityHigh], 5)
		assert.Equal(t, "about tmpl-0", res.Grouped[core.SeverityHigh][0].AI.Description)
		assert.Equal(t, "patch", res.Results[4].AI.Remediation)

		files := snapshots(t, dir)
		require.Len(t, files, 1)
		saved, err := report.LoadSnapshot(files[0])
		require.NoError(t, err)
		require.Len(t, saved.Results, 5)
		assert.True(t, saved.Results[0].AI.Empty())
	})

	t.Run("disabled", func(t *testing.T) {
		calls = 0
		c := newController(t, WithEnricher(explain))
		res, err := c.Start(context.Background(), fakeRequest(t, "high5"), nil)
		require.NoError(t, err)
		assert.Zero(t, calls)
		assert.True(t, res.Results[0].AI.Empty())
	})
}

func TestExitStatus(t *testing.T) {
	code, err := exitStatus(nil)
	require.NoError(t, err)
	assert.Zero(t, code)

	_, err = exitStatus(errors.New("wait: boom"))
	assert.ErrorIs(t, err, ErrScannerFailed)
}
