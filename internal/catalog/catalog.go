// Package catalog enumerates scanner template directories into named groups.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TemplateExt 模板文件扩展名
const TemplateExt = ".yaml"

// 分类标签
const (
	GroupWeb        = "web"
	GroupDatabase   = "database"
	GroupMiddleware = "middleware"
	GroupProtocol   = "protocol"
	GroupAuth       = "auth"
	GroupCVE        = "cve"
	GroupOther      = "other"
)

var ErrRootNotFound = errors.New("template root not found")

// Category 一个分类及其包含的模板目录名
type Category struct {
	Label   string   `yaml:"label" json:"label"`
	Folders []string `yaml:"folders" json:"folders"`
}

// TemplateGroup 模板根目录下的一个一级子目录
type TemplateGroup struct {
	Name      string   `json:"name"`
	Group     string   `json:"group"`
	Templates []string `json:"templates"`
}

// DefaultCategories 内置分类表。同一目录出现在多个分类时，后面的分类生效。
var DefaultCategories = []Category{
	{Label: GroupWeb, Folders: []string{
		"web", "wordpress", "joomla", "magento", "php", "java", "javascript", "drupal", "shopify",
		"laravel", "nodejs", "graphql", "upload", "template_injection", "remote_code_execution",
		"xss", "sql_injection", "crlf_injection", "cross_site_request_forgery", "open_redirect",
		"directory_listing", "local_file_inclusion", "file", "favicon", "debug", "default",
		"exposed", "extract", "header", "http", "config", "detect", "auth", "api", "code", "cloud",
		"network", "passive", "perl", "python", "ruby", "sensitive", "sharepoint", "social",
		"search", "subdomain_takeover", "vmware", "workflows",
	}},
	{Label: GroupDatabase, Folders: []string{"mysql", "oracle", "postgres", "mongodb", "redis"}},
	{Label: GroupMiddleware, Folders: []string{
		"nginx", "microsoft", "apache", "cisco", "ftp", "smtp", "rabbitmq", "kafka", "kong",
		"sap", "gcloud", "elk", "ibm",
	}},
	{Label: GroupProtocol, Folders: []string{"ssh", "samba", "ssl", "dns"}},
	{Label: GroupAuth, Folders: []string{"ldap"}},
	{Label: GroupCVE, Folders: []string{"cve", "cnnvd", "cnvd"}},
	{Label: GroupOther},
}

// Classifier 目录名到分类标签的映射
type Classifier map[string]string

func NewClassifier(categories []Category) Classifier {
	c := make(Classifier)
	for _, cat := range categories {
		for _, folder := range cat.Folders {
			c[strings.ToLower(folder)] = cat.Label
		}
	}
	return c
}

// Classify 未知目录归入 other
func (c Classifier) Classify(folder string) string {
	if label, ok := c[strings.ToLower(folder)]; ok {
		return label
	}
	return GroupOther
}

// Load 只扫描一级子目录，按目录名排序返回
func Load(root string, categories []Category) ([]TemplateGroup, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrRootNotFound)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("read template root: %w", err)
	}
	if categories == nil {
		categories = DefaultCategories
	}
	classifier := NewClassifier(categories)

	groups := make([]TemplateGroup, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		templates, err := listTemplates(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		groups = append(groups, TemplateGroup{
			Name:      e.Name(),
			Group:     classifier.Classify(e.Name()),
			Templates: templates,
		})
	}
	return groups, nil
}

func listTemplates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template group %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), TemplateExt) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// ByLabel 按分类标签聚合
func ByLabel(groups []TemplateGroup) map[string][]TemplateGroup {
	out := make(map[string][]TemplateGroup)
	for _, g := range groups {
		out[g.Group] = append(out[g.Group], g)
	}
	return out
}

// Labels returns the category labels in table order with "other" last.
func Labels(categories []Category) []string {
	if categories == nil {
		categories = DefaultCategories
	}
	seen := map[string]bool{}
	var labels []string
	for _, c := range categories {
		if c.Label == GroupOther || seen[c.Label] {
			continue
		}
		seen[c.Label] = true
		labels = append(labels, c.Label)
	}
	return append(labels, GroupOther)
}
