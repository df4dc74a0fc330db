package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/25smoking/Pallas/internal/core"
)

// WriteSorted 文本报告：先按级别，再按类型分组，全局连续编号
func WriteSorted(w io.Writer, res *core.GroupedResult, meta Meta) error {
	bw := &errWriter{w: w}
	bw.printf("# 扫描结果整理 %s @ %s\n", meta.timestamp(), meta.Host)

	idx := 1
	for _, level := range core.SeverityOrder {
		findings := res.Grouped[level]
		if len(findings) == 0 {
			continue
		}
		bw.printf("\n%s %s %s\n", strings.Repeat("=", 10), strings.ToUpper(level), strings.Repeat("=", 10))

		byType := make(map[string][]core.Finding)
		for _, f := range findings {
			typ := "unknown"
			if f.Details != nil && f.Details.Type != "" {
				typ = f.Details.Type
			}
			byType[typ] = append(byType[typ], f)
		}
		types := make([]string, 0, len(byType))
		for typ := range byType {
			types = append(types, typ)
		}
		sort.Strings(types)

		for _, typ := range types {
			bw.printf("\n--- [%s] ---\n", typ)
			for _, f := range byType[typ] {
				bw.printf("[%d] %s\n", idx, f.Raw)
				idx++
			}
		}
	}
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
