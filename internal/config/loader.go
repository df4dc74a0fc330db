package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/25smoking/Pallas/internal/catalog"
	"github.com/25smoking/Pallas/internal/core"
	"github.com/25smoking/Pallas/internal/embedded"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile    = "pallas.yaml"
	CategoriesFile = "categories.yaml"

	// EnvAPIKey 配置文件与命令行都未提供 key 时读取的环境变量
	EnvAPIKey = "PALLAS_AI_KEY"
)

// ========== App Config ==========

type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	AI      AIConfig      `yaml:"ai"`
	Output  OutputConfig  `yaml:"output"`
}

type ScannerConfig struct {
	Path        string   `yaml:"path"`
	TemplateDir string   `yaml:"template_dir"`
	ResultsDir  string   `yaml:"results_dir"`
	Templates   []string `yaml:"templates"`
	Concurrency int      `yaml:"concurrency"`
	Timeout     int      `yaml:"timeout"`
	Severity    string   `yaml:"severity"`
}

type AIConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	APIKey   string   `yaml:"api_key"`
	APIBase  string   `yaml:"api_base"`
	Workers  int      `yaml:"workers"`
	Timeout  int      `yaml:"timeout"` // 秒
	Markers  []string `yaml:"remediation_markers"`
}

// RequestTimeout returns the per-request timeout.
func (a AIConfig) RequestTimeout() time.Duration {
	if a.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.Timeout) * time.Second
}

type OutputConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// ScanRequest 由配置构造扫描请求，目标地址由调用方填写
func (c *Config) ScanRequest(target string) core.ScanRequest {
	return core.ScanRequest{
		Executable:   c.Scanner.Path,
		TemplateRoot: c.Scanner.TemplateDir,
		Templates:    append([]string(nil), c.Scanner.Templates...),
		Target:       target,
		Concurrency:  c.Scanner.Concurrency,
		Timeout:      c.Scanner.Timeout,
		Severity:     c.Scanner.Severity,
		EnableAI:     c.AI.Enabled,
	}
}

// ========== Loader Functions ==========

func loadConfigData(configPath, defaultName string) ([]byte, error) {
	// 1. 尝试从文件系统加载
	if configPath == "" {
		configPath = GetConfigPath(defaultName)
	}

	if _, err := os.Stat(configPath); err == nil {
		return os.ReadFile(configPath)
	}

	// 2. 回退到内嵌配置
	// 注意: embed总是使用正斜杠
	return embedded.Content.ReadFile("config/" + defaultName)
}

// Load 读取应用配置，configPath 为空时依次尝试 ./config/pallas.yaml 与内嵌默认值
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	data, err := loadConfigData(configPath, DefaultFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.Scanner.ResultsDir == "" {
		cfg.Scanner.ResultsDir = "result"
	}
	return &cfg, nil
}

type categoriesFile struct {
	Categories []catalog.Category `yaml:"categories"`
}

// LoadCategories 读取自定义模板分类表，文件不存在时使用内置分类
func LoadCategories(configPath string) ([]catalog.Category, error) {
	if configPath == "" {
		configPath = GetConfigPath(CategoriesFile)
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return catalog.DefaultCategories, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	if len(file.Categories) == 0 {
		return catalog.DefaultCategories, nil
	}
	return file.Categories, nil
}

// GetConfigPath 获取配置文件的路径（兼容不同运行环境）
func GetConfigPath(filename string) string {
	// 尝试多个可能的路径
	candidates := []string{
		filepath.Join("config", filename),
		filepath.Join("..", "config", filename),
		filename,
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// 默认返回第一个路径
	return candidates[0]
}
