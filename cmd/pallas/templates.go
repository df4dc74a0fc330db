package main

import (
	"fmt"

	"github.com/25smoking/Pallas/internal/catalog"
	"github.com/25smoking/Pallas/internal/config"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/spf13/cobra"
)

var (
	listDir       string
	categoryPath  string
	showTemplates bool
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "按分类列出模板目录下的模板分组",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := listDir
		if root == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			root = cfg.Scanner.TemplateDir
		}

		categories, err := config.LoadCategories(categoryPath)
		if err != nil {
			return err
		}
		groups, err := catalog.Load(root, categories)
		if err != nil {
			return err
		}
		printCatalog(groups, catalog.Labels(categories))
		return nil
	},
}

func init() {
	templatesCmd.Flags().StringVar(&listDir, "templates-dir", "", "模板根目录 (默认取配置文件)")
	templatesCmd.Flags().StringVar(&categoryPath, "categories", "", "分类表路径 (默认 ./config/categories.yaml)")
	templatesCmd.Flags().BoolVarP(&showTemplates, "verbose", "v", false, "列出每个分组中的模板文件")
	rootCmd.AddCommand(templatesCmd)
}

func printCatalog(groups []catalog.TemplateGroup, labels []string) {
	byLabel := catalog.ByLabel(groups)
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	total := 0
	for _, label := range labels {
		list := byLabel[label]
		if len(list) == 0 {
			continue
		}
		fmt.Printf("%s[%s]%s\n", c(report.ColorBold+report.ColorCyan), label, c(report.ColorReset))
		for _, g := range list {
			fmt.Printf("  %-32s %s%d 个模板%s\n", g.Name, c(report.ColorDim), len(g.Templates), c(report.ColorReset))
			if showTemplates {
				for _, t := range g.Templates {
					fmt.Printf("      %s\n", t)
				}
			}
			total += len(g.Templates)
		}
	}
	fmt.Printf("\n共 %d 个分组, %d 个模板\n", len(groups), total)
}
