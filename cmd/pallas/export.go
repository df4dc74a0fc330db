package main

import (
	"fmt"
	"strings"

	"github.com/25smoking/Pallas/internal/report"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <snapshot.json>",
	Short: "把已保存的扫描结果重新导出为其他格式",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := report.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		path, err := report.Export(res, exportFormat, exportOutput)
		if err != nil {
			return err
		}
		log.Infof("已导出 %d 条结果: %s", len(res.Results), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", report.FormatHTML,
		fmt.Sprintf("导出格式 (%s)", strings.Join(report.Formats(), ", ")))
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "输出路径 (默认 scan_result.<格式>)")
	rootCmd.AddCommand(exportCmd)
}
