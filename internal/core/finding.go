package core

import "strings"

// 严重级别
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
	SeverityUnknown  = "unknown"
)

// SeverityOrder 报告中分组的固定顺序
var SeverityOrder = []string{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
	SeverityUnknown,
}

// SeverityRank 返回级别在 SeverityOrder 中的位置，未知级别排在最后
func SeverityRank(level string) int {
	level = strings.ToLower(level)
	for i, s := range SeverityOrder {
		if s == level {
			return i
		}
	}
	return len(SeverityOrder) - 1
}

// Details 是能从扫描器输出中解析出的结构化字段
type Details struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Severity    string `json:"severity,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// AIAnnotation 空字符串表示"不可用"
type AIAnnotation struct {
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// Empty reports whether neither field carries text.
func (a AIAnnotation) Empty() bool {
	return a.Description == "" && a.Remediation == ""
}

// Finding 扫描器输出的一条结果行
type Finding struct {
	Raw      string       `json:"raw"`
	Severity string       `json:"severity,omitempty"`
	Details  *Details     `json:"details,omitempty"`
	AI       AIAnnotation `json:"ai"`
}

// Level 返回用于分组的级别
func (f Finding) Level() string {
	if f.Details != nil && f.Details.Severity != "" {
		return strings.ToLower(f.Details.Severity)
	}
	if f.Severity != "" {
		return strings.ToLower(f.Severity)
	}
	return SeverityUnknown
}

// Name returns the template name when known, otherwise the raw line.
func (f Finding) Name() string {
	if f.Details != nil && f.Details.Name != "" {
		return f.Details.Name
	}
	return f.Raw
}

// GroupedResult 按级别分组的结果以及按输出顺序排列的全部结果
type GroupedResult struct {
	Grouped map[string][]Finding `json:"grouped"`
	Results []Finding            `json:"results"`
}

// EmptyResult 返回 {grouped: {}, results: []}
func EmptyResult() *GroupedResult {
	return &GroupedResult{
		Grouped: make(map[string][]Finding),
		Results: make([]Finding, 0),
	}
}

// Group 按级别分组，组内保持输出顺序
func Group(findings []Finding) *GroupedResult {
	res := EmptyResult()
	for _, f := range findings {
		level := f.Level()
		res.Grouped[level] = append(res.Grouped[level], f)
	}
	res.Results = append(res.Results, findings...)
	return res
}

// Counts returns the number of findings per level.
func (r *GroupedResult) Counts() map[string]int {
	counts := make(map[string]int, len(r.Grouped))
	for level, list := range r.Grouped {
		counts[level] = len(list)
	}
	return counts
}
