package report

import (
	"encoding/csv"
	"io"

	"github.com/25smoking/Pallas/internal/core"
)

// WriteCSV 每条结果一行，按输出顺序
func WriteCSV(w io.Writer, res *core.GroupedResult) error {
	// 写入 BOM 以防止 Excel 打开中文乱码
	if _, err := w.Write([]byte("\xEF\xBB\xBF")); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Severity", "Name", "Type", "URL", "Description", "AI Description", "AI Remediation", "Raw"}); err != nil {
		return err
	}

	for _, f := range res.Results {
		d := core.Details{}
		if f.Details != nil {
			d = *f.Details
		}
		row := []string{f.Level(), d.Name, d.Type, d.URL, d.Description, f.AI.Description, f.AI.Remediation, f.Raw}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
