package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/25smoking/Pallas/internal/ai"
	"github.com/25smoking/Pallas/internal/catalog"
	"github.com/25smoking/Pallas/internal/config"
	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/enrich"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/25smoking/Pallas/internal/runner"
	"github.com/spf13/cobra"
)

var (
	target       string
	scannerPath  string
	templateDir  string
	resultsDir   string
	templates    []string
	groupLabels  []string
	concurrency  int
	timeout      int
	severity     string
	enableAI     bool
	aiProvider   string
	aiModel      string
	apiKey       string
	outputFormat string
	outputPath   string
	quiet        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "运行 nuclei 扫描并导出报告",
	Example: `  pallas scan -u https://example.com --nuclei /usr/local/bin/nuclei --templates-dir ./nuclei-templates -t cves,http
  pallas scan -u https://example.com --group web,cve --ai --key sk-xxx -f html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd)
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&target, "target", "u", "", "扫描目标 (URL 或主机)")
	f.StringVar(&scannerPath, "nuclei", "", "nuclei 可执行文件路径")
	f.StringVar(&templateDir, "templates-dir", "", "模板根目录")
	f.StringVar(&resultsDir, "results-dir", "", "扫描快照保存目录")
	f.StringSliceVarP(&templates, "template", "t", nil, "模板分组 (模板根目录下的一级目录名)")
	f.StringSliceVarP(&groupLabels, "group", "g", nil, "按分类选择模板分组 (web, database, middleware, protocol, auth, cve, other)")
	f.IntVarP(&concurrency, "concurrency", "c", 0, "nuclei 并发数")
	f.IntVar(&timeout, "timeout", 0, "nuclei 请求超时 (秒)")
	f.StringVarP(&severity, "severity", "s", "", "严重级别过滤 (如 critical,high)")
	f.BoolVar(&enableAI, "ai", false, "扫描结束后请求 AI 解释")
	f.StringVar(&aiProvider, "provider", "", "AI 提供方 (deepseek, openai, gemini)")
	f.StringVar(&aiModel, "model", "", "AI 模型")
	f.StringVar(&apiKey, "key", "", "AI API 密钥")
	f.StringVarP(&outputFormat, "format", "f", "", "报告格式 (json, html, csv, txt)")
	f.StringVarP(&outputPath, "output", "o", "", "报告输出路径")
	f.BoolVarP(&quiet, "quiet", "q", false, "不转发 nuclei 的 stderr 输出")

	rootCmd.AddCommand(scanCmd)
}

// applyScanFlags 命令行显式给出的参数覆盖配置文件
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("nuclei") {
		cfg.Scanner.Path = scannerPath
	}
	if flags.Changed("templates-dir") {
		cfg.Scanner.TemplateDir = templateDir
	}
	if flags.Changed("results-dir") {
		cfg.Scanner.ResultsDir = resultsDir
	}
	if flags.Changed("template") {
		cfg.Scanner.Templates = splitList(templates)
	}
	if flags.Changed("concurrency") {
		cfg.Scanner.Concurrency = concurrency
	}
	if flags.Changed("timeout") {
		cfg.Scanner.Timeout = timeout
	}
	if flags.Changed("severity") {
		cfg.Scanner.Severity = severity
	}
	if flags.Changed("ai") {
		cfg.AI.Enabled = enableAI
	}
	if flags.Changed("provider") {
		cfg.AI.Provider = aiProvider
	}
	if flags.Changed("model") {
		cfg.AI.Model = aiModel
	}
	if flags.Changed("key") {
		cfg.AI.APIKey = apiKey
	}
	if flags.Changed("format") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("output") {
		cfg.Output.Path = outputPath
	}
}

// expandGroups 把分类标签展开为模板目录名，追加到已选分组之后
func expandGroups(root string, selected, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return selected, nil
	}
	categories, err := config.LoadCategories("")
	if err != nil {
		return nil, err
	}
	groups, err := catalog.Load(root, categories)
	if err != nil {
		return nil, err
	}
	byLabel := catalog.ByLabel(groups)

	seen := make(map[string]bool, len(selected))
	for _, name := range selected {
		seen[name] = true
	}
	for _, label := range splitList(labels) {
		matched := byLabel[label]
		if len(matched) == 0 {
			log.Warnf("分类 '%s' 下没有模板分组", label)
		}
		for _, g := range matched {
			if !seen[g.Name] {
				seen[g.Name] = true
				selected = append(selected, g.Name)
			}
		}
	}
	return selected, nil
}

func newEnricher(cfg *config.Config) *enrich.Coordinator {
	client := ai.NewClient(cfg.AI.Provider, cfg.AI.Model, cfg.AI.APIKey, cfg.AI.APIBase, cfg.AI.RequestTimeout())
	if len(cfg.AI.Markers) > 0 {
		client.Markers = cfg.AI.Markers
	}
	if client.APIKey == "" {
		log.Warnf("未配置 AI API 密钥 (--key / 配置文件 / %s)，AI 解释将为空", config.EnvAPIKey)
	}
	return enrich.NewCoordinator(client, enrich.WithWorkers(cfg.AI.Workers), enrich.WithLogger(log))
}

func reportPath(cfg *config.Config) string {
	if cfg.Output.Path != "" {
		return cfg.Output.Path
	}
	ext := cfg.Output.Format
	if ext == "excel" {
		ext = report.FormatCSV
	}
	return fmt.Sprintf("pallas_report_%s.%s", time.Now().Format("20060102_150405"), ext)
}

func runScan(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyScanFlags(cmd, cfg)
	if cfg.Output.Format == "" {
		cfg.Output.Format = report.FormatHTML
	}

	req := cfg.ScanRequest(target)
	if req.Templates, err = expandGroups(req.TemplateRoot, req.Templates, groupLabels); err != nil {
		return fmt.Errorf("加载模板分组失败: %w", err)
	}

	term := newTerminal()
	fmt.Println(Banner)
	fmt.Println()
	fmt.Printf("目标: %s\n", orDefault(req.Target, "(未指定)"))
	fmt.Printf("扫描器: %s\n", req.Executable)
	if len(req.Templates) > 0 {
		fmt.Printf("模板分组: %v\n", req.Templates)
	}
	if req.TemplateRoot != "" {
		fmt.Printf("模板目录: %s\n", filepath.Clean(req.TemplateRoot))
	}

	opts := []runner.Option{
		runner.WithLogger(log),
		runner.WithResultsDir(cfg.Scanner.ResultsDir),
	}
	if !quiet {
		opts = append(opts, runner.WithDiagnostics(os.Stderr))
	}
	if req.EnableAI {
		opts = append(opts, runner.WithEnricher(newEnricher(cfg)))
	}
	ctrl := runner.New(opts...)

	// Ctrl-C 打断扫描，已收集的结果仍会导出
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term.PrintSection("开始扫描")
	res, err := ctrl.Start(ctx, req, term)
	ctrl.Wait()

	switch {
	case errors.Is(err, runner.ErrAborted):
		log.Warn("扫描已被打断，导出已收集的结果")
	case err != nil:
		return err
	}

	term.PrintSummary(res)
	path, err := report.Export(res, cfg.Output.Format, reportPath(cfg))
	if err != nil {
		return fmt.Errorf("导出报告失败: %w", err)
	}
	fmt.Printf("\n%s  报告已生成: %s\n", report.IconSuccess, path)

	if len(res.Grouped[core.SeverityCritical])+len(res.Grouped[core.SeverityHigh]) == 0 {
		log.Info("扫描完成，未发现高危及以上风险。")
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
