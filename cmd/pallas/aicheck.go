package main

import (
	"context"
	"fmt"
	"time"

	"github.com/25smoking/Pallas/internal/ai"
	"github.com/25smoking/Pallas/internal/config"
	"github.com/25smoking/Pallas/internal/report"
	"github.com/spf13/cobra"
)

var aiCheckCmd = &cobra.Command{
	Use:   "ai-check",
	Short: "检查 AI 接口是否可用",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("provider") {
			cfg.AI.Provider = aiProvider
		}
		if flags.Changed("model") {
			cfg.AI.Model = aiModel
		}
		if flags.Changed("key") {
			cfg.AI.APIKey = apiKey
		}

		client := ai.NewClient(cfg.AI.Provider, cfg.AI.Model, cfg.AI.APIKey, cfg.AI.APIBase, cfg.AI.RequestTimeout())
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		log.Infof("正在检查 %s (%s)...", client.Provider, client.Model)
		if !client.Check(ctx) {
			return fmt.Errorf("AI 接口不可用: %s", client.Provider)
		}
		fmt.Printf("%s  AI 接口可用: %s / %s\n", report.IconSuccess, client.Provider, client.Model)
		return nil
	},
}

func init() {
	aiCheckCmd.Flags().StringVar(&aiProvider, "provider", "", "AI 提供方 (deepseek, openai, gemini)")
	aiCheckCmd.Flags().StringVar(&aiModel, "model", "", "AI 模型")
	aiCheckCmd.Flags().StringVar(&apiKey, "key", "", "AI API 密钥")
	rootCmd.AddCommand(aiCheckCmd)
}
