package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/25smoking/Pallas/internal/core"
)

// ANSI 颜色代码
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// 图标
const (
	IconSuccess  = "✓"
	IconWarning  = "⚠"
	IconError    = "✗"
	IconInfo     = "ℹ"
	IconCritical = "☠"
	IconScan     = "🔍"
	IconShield   = "🛡"
)

// Terminal 把扫描进度打印到终端，实现 progress.Observer
type Terminal struct {
	mu        sync.Mutex
	w         io.Writer
	color     bool
	startTime time.Time
}

func NewTerminal(w io.Writer, color bool) *Terminal {
	return &Terminal{w: w, color: color, startTime: time.Now()}
}

func (t *Terminal) c(code string) string {
	if !t.color {
		return ""
	}
	return code
}

func (t *Terminal) OnProgress(p core.ScanProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch p.Status {
	case core.StatusStarting:
		t.startTime = time.Now()
		fmt.Fprintf(t.w, "%s %s[scan]%s 启动扫描器...\n", IconScan, t.c(ColorCyan), t.c(ColorReset))
	case core.StatusPreparing:
		fmt.Fprintf(t.w, "%s %s[scan]%s 加载 %s%d%s 个模板\n",
			IconScan, t.c(ColorCyan), t.c(ColorReset), t.c(ColorYellow), deref(p.Total), t.c(ColorReset))
	case core.StatusRunning:
		if p.Current == "" {
			fmt.Fprintf(t.w, "%s %s[scan]%s 模板总数更新为 %d\n", IconInfo, t.c(ColorDim), t.c(ColorReset), deref(p.Total))
			return
		}
		icon, color := t.levelStyle(p.Level)
		fmt.Fprintf(t.w, "%s %s(%d%s)%s %s\n", icon, color, p.Finished, totalSuffix(p.Total), t.c(ColorReset), p.Current)
	case core.StatusFinished:
		fmt.Fprintf(t.w, "%s %s[scan]%s 完成 - 用时 %s%.2fs%s - 发现 %s%d%s 项 (exit code %d)\n",
			IconSuccess, t.c(ColorGreen), t.c(ColorReset),
			t.c(ColorDim), time.Since(t.startTime).Seconds(), t.c(ColorReset),
			t.c(ColorYellow), p.Finished, t.c(ColorReset), deref(p.Code))
	case core.StatusAborted:
		fmt.Fprintf(t.w, "%s %s[scan]%s 扫描已打断，已收集 %d 项\n", IconWarning, t.c(ColorYellow), t.c(ColorReset), p.Finished)
	case core.StatusFailed:
		fmt.Fprintf(t.w, "%s %s[scan] 扫描失败:%s %s\n", IconError, t.c(ColorRed), t.c(ColorReset), p.Error)
	}
}

// PrintSection 打印分节标题
func (t *Terminal) PrintSection(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := strings.Repeat("─", 65)
	fmt.Fprintf(t.w, "\n%s┌%s┐%s\n", t.c(ColorBlue), line, t.c(ColorReset))
	fmt.Fprintf(t.w, "%s│ %s%-63s%s │%s\n", t.c(ColorBlue), t.c(ColorBold+ColorWhite), title, t.c(ColorReset+ColorBlue), t.c(ColorReset))
	fmt.Fprintf(t.w, "%s└%s┘%s\n\n", t.c(ColorBlue), line, t.c(ColorReset))
}

// PrintSummary 按级别统计结果
func (t *Terminal) PrintSummary(res *core.GroupedResult) {
	if len(res.Results) == 0 {
		t.PrintSection("扫描结果")
		t.mu.Lock()
		fmt.Fprintf(t.w, "%s %s[CLEAN]%s 未发现漏洞\n\n", IconShield, t.c(ColorGreen), t.c(ColorReset))
		t.mu.Unlock()
		return
	}

	t.PrintSection("扫描结果摘要")
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, level := range core.SeverityOrder {
		n := len(res.Grouped[level])
		if n == 0 {
			continue
		}
		icon, color := t.levelStyle(level)
		fmt.Fprintf(t.w, "  %s %s%-8s %d 项%s\n", icon, color, level, n, t.c(ColorReset))
	}
	fmt.Fprintf(t.w, "\n  %s总耗时:%s %.2f 秒\n", t.c(ColorDim), t.c(ColorReset), time.Since(t.startTime).Seconds())
}

func (t *Terminal) levelStyle(level string) (string, string) {
	switch strings.ToLower(level) {
	case core.SeverityCritical:
		return IconCritical, t.c(ColorRed + ColorBold)
	case core.SeverityHigh:
		return IconError, t.c(ColorRed)
	case core.SeverityMedium:
		return IconWarning, t.c(ColorYellow)
	case core.SeverityLow:
		return IconInfo, t.c(ColorCyan)
	default:
		return IconInfo, t.c(ColorWhite)
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func totalSuffix(total *int) string {
	if total == nil {
		return ""
	}
	return fmt.Sprintf("/%d", *total)
}
