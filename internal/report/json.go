package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/25smoking/Pallas/internal/core"
)

// WriteJSON 输出 {grouped, results}
func WriteJSON(w io.Writer, res *core.GroupedResult) error {
	if res == nil {
		res = core.EmptyResult()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}

// SaveSnapshot 把扫描结束时 (AI 解释之前) 的结果保存到 dir/scan_<时间>_<id>.json
func SaveSnapshot(dir, scanID string, res *core.GroupedResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	name := "scan_" + time.Now().Format("20060102_150405")
	if scanID != "" {
		name += "_" + scanID[:min(8, len(scanID))]
	}
	path := filepath.Join(dir, name+".json")

	if err := writeFile(path, func(w io.Writer) error { return WriteJSON(w, res) }); err != nil {
		return "", err
	}
	return path, nil
}

// writeFile 写入并关闭文件；写入或关闭失败时删除不完整的文件
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return write(f)
}

// LoadSnapshot 读取已保存的结果，缺失的分组按 results 重新计算
func LoadSnapshot(path string) (*core.GroupedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var res core.GroupedResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(res.Grouped) == 0 {
		return core.Group(res.Results), nil
	}
	if res.Results == nil {
		res.Results = make([]core.Finding, 0)
	}
	return &res, nil
}
