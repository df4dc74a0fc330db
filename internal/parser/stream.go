package parser

import (
	"errors"
	"io"

	"github.com/25smoking/Pallas/internal/core"
)

// ReadFindings 从已保存的扫描器输出中提取全部漏洞行，以及最后一次公布的模板总数
func ReadFindings(r io.Reader) ([]core.Finding, int, error) {
	var (
		framer   Framer
		findings []core.Finding
		total    int
	)
	handle := func(line string) {
		c := Classify(line)
		switch c.Kind {
		case KindProgress:
			total = c.Total
		case KindFinding:
			findings = append(findings, c.Finding)
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		for _, line := range framer.Push(buf[:n]) {
			handle(line)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return findings, total, err
		}
	}
	if line, ok := framer.Flush(); ok {
		handle(line)
	}
	return findings, total, nil
}
