package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var (
	ErrExecutableNotFound    = errors.New("scanner executable not found")
	ErrExecutableNotRunnable = errors.New("scanner executable is not runnable")
	ErrTemplateRootNotFound  = errors.New("template directory not found")
)

// ScanRequest 单次扫描的参数，启动进程后即丢弃
type ScanRequest struct {
	Executable   string   `yaml:"path" json:"executable"`
	TemplateRoot string   `yaml:"template_dir" json:"template_root"`
	Templates    []string `yaml:"templates" json:"templates"`
	Target       string   `yaml:"-" json:"target"`
	Concurrency  int      `yaml:"concurrency" json:"concurrency"`
	Timeout      int      `yaml:"timeout" json:"timeout"`
	Severity     string   `yaml:"severity" json:"severity"`
	EnableAI     bool     `yaml:"-" json:"enable_ai"`
}

// Validate 检查扫描器路径与模板目录
func (r ScanRequest) Validate() error {
	if r.Executable == "" {
		return fmt.Errorf("%w: empty path", ErrExecutableNotFound)
	}
	info, err := os.Stat(r.Executable)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExecutableNotFound, r.Executable)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrExecutableNotRunnable, r.Executable)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s has no execute permission", ErrExecutableNotRunnable, r.Executable)
	}

	if len(r.Templates) > 0 {
		info, err := os.Stat(r.TemplateRoot)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %q", ErrTemplateRootNotFound, r.TemplateRoot)
		}
	}
	return nil
}

// Args 构造扫描器命令行参数
func (r ScanRequest) Args() []string {
	var args []string
	if r.Target != "" {
		args = append(args, "-u", r.Target)
	}
	for _, group := range r.Templates {
		args = append(args, "-t", filepath.Join(r.TemplateRoot, group))
	}
	if r.Concurrency > 0 {
		args = append(args, "-c", fmt.Sprint(r.Concurrency))
	}
	if r.Timeout > 0 {
		args = append(args, "-timeout", fmt.Sprint(r.Timeout))
	}
	if r.Severity != "" {
		args = append(args, "-severity", r.Severity)
	}
	// 强制关闭彩色输出，解析器按纯文本逐行处理
	return append(args, "-nc")
}
