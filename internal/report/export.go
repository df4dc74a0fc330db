package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/25smoking/Pallas/internal/core"
)

// 导出格式
const (
	FormatJSON = "json"
	FormatHTML = "html"
	FormatCSV  = "csv"
	FormatText = "txt"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every supported export format.
func Formats() []string {
	return []string{FormatJSON, FormatHTML, FormatCSV, FormatText}
}

// Export 把结果写入 path，path 为空时写到当前目录的 scan_result.<格式>
func Export(res *core.GroupedResult, format, path string) (string, error) {
	format = strings.ToLower(format)
	if format == "excel" {
		format = FormatCSV
	}
	switch format {
	case FormatJSON, FormatHTML, FormatCSV, FormatText:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if res == nil {
		res = core.EmptyResult()
	}
	if path == "" {
		path = "scan_result." + format
	}

	err := writeFile(path, func(w io.Writer) error {
		switch format {
		case FormatJSON:
			return WriteJSON(w, res)
		case FormatHTML:
			return WriteHTML(w, res, DefaultMeta())
		case FormatCSV:
			return WriteCSV(w, res)
		default:
			return WriteSorted(w, res, DefaultMeta())
		}
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	return path, nil
}
