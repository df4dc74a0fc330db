package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/25smoking/Pallas/internal/core"
)

// Kind 行分类结果
type Kind int

const (
	KindNoise Kind = iota
	KindProgress
	KindFinding
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindFinding:
		return "finding"
	default:
		return "noise"
	}
}

// Classification is the outcome of Classify. Total is set for KindProgress,
// Finding for KindFinding.
type Classification struct {
	Kind    Kind
	Total   int
	Finding core.Finding
}

var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	executeRe  = regexp.MustCompile(`Executing (\d+) signed templates`)
	severityRe = regexp.MustCompile(`(?i)\[(critical|high|medium|low|info)\]`)
	leadingRe  = regexp.MustCompile(`^(?:\[[^\]]*\]\s*)+`)
	bracketRe  = regexp.MustCompile(`\[([^\]]*)\]`)
)

// StripANSI removes terminal styling sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// Classify 将一行扫描器输出分类为进度、漏洞或噪声。无状态。
func Classify(line string) Classification {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Classification{Kind: KindNoise}
	}
	plain := StripANSI(raw)

	if m := executeRe.FindStringSubmatch(plain); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return Classification{Kind: KindProgress, Total: n}
		}
	}

	m := severityRe.FindStringSubmatch(plain)
	if m == nil {
		return Classification{Kind: KindNoise}
	}

	return Classification{
		Kind: KindFinding,
		Finding: core.Finding{
			Raw:      raw,
			Severity: strings.ToLower(m[1]),
			Details:  extractDetails(plain),
		},
	}
}

// extractDetails 解析 "[时间] [模板] [类型] [级别] URL 其它" 格式；
// 级别前至少要有两个方括号字段，否则不提取结构化信息
func extractDetails(plain string) *core.Details {
	lead := leadingRe.FindString(plain)
	if lead == "" {
		return nil
	}

	fields := bracketRe.FindAllStringSubmatchIndex(lead, -1)
	for i, loc := range fields {
		level := strings.ToLower(lead[loc[2]:loc[3]])
		if !isSeverity(level) {
			continue
		}
		if i < 2 {
			return nil
		}
		name, typ := fields[i-2], fields[i-1]
		rest := strings.TrimSpace(plain[loc[1]:])

		d := &core.Details{
			Name:     lead[name[2]:name[3]],
			Type:     strings.ToLower(lead[typ[2]:typ[3]]),
			Severity: level,
		}
		if url, desc, ok := strings.Cut(rest, " "); ok {
			d.URL = url
			d.Description = strings.TrimSpace(desc)
		} else {
			d.URL = rest
		}
		return d
	}
	return nil
}

func isSeverity(s string) bool {
	switch s {
	case core.SeverityCritical, core.SeverityHigh, core.SeverityMedium, core.SeverityLow, core.SeverityInfo:
		return true
	}
	return false
}
