package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/25smoking/Pallas/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const Banner = `
  ____       _ _
 |  _ \ __ _| | | __ _ ___
 | |_) / _' | | |/ _' / __|
 |  __/ (_| | | | (_| \__ \
 |_|   \__,_|_|_|\__,_|___/   nuclei 扫描调度与 AI 解读`

var (
	log *zap.SugaredLogger

	// Command line flags
	configPath string
	debugMode  bool
	noColor    bool
)

func init() {
	logger, _ := zap.NewProduction()
	log = logger.Sugar()
}

var rootCmd = &cobra.Command{
	Use:   "pallas",
	Short: "Pallas - nuclei 漏洞扫描调度与结果解读工具",
	Long: `Pallas 驱动外部 nuclei 扫描器执行扫描，实时解析输出并汇报进度，
扫描结束后按严重级别整理结果，可选调用 AI 为每条结果生成解释与修复建议，
最终导出 HTML / JSON / CSV / 文本报告。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !debugMode {
			return nil
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = logger.Sugar()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径 (默认 ./config/pallas.yaml, 不存在时使用内置配置)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "输出调试日志")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "关闭终端颜色")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pallas %s\n", Version)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Ensure proper cleanup on exit
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("程序发生 panic: %v", r)
			os.Exit(1)
		}
		log.Sync()
	}()

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		log.Sync()
		os.Exit(1)
	}
}

func newTerminal() *report.Terminal {
	color := !noColor && os.Getenv("NO_COLOR") == ""
	return report.NewTerminal(os.Stdout, color)
}

// splitList 同时支持 -t a,b 与多次 -t
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
