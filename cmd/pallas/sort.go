package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/parser"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/spf13/cobra"
)

var sortOutput string

var sortCmd = &cobra.Command{
	Use:   "sort <nuclei-output.txt>",
	Short: "整理 nuclei 的原始输出：按级别和类型分组编号",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		findings, _, err := parser.ReadFindings(in)
		if err != nil {
			return fmt.Errorf("读取 %s 失败: %w", args[0], err)
		}
		res := core.Group(findings)

		out := sortOutput
		if out == "" {
			out = strings.TrimSuffix(args[0], ".txt") + "_sorted.txt"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := report.WriteSorted(f, res, report.DefaultMeta()); err != nil {
			return err
		}
		log.Infof("共整理 %d 条结果: %s", len(findings), out)
		return nil
	},
}

func init() {
	sortCmd.Flags().StringVarP(&sortOutput, "output", "o", "", "输出路径 (默认 <输入>_sorted.txt)")
	rootCmd.AddCommand(sortCmd)
}
