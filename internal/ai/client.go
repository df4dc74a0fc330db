package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/25smoking/Pallas/internal/core"
)

// 支持的模型提供方
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai" // 任意兼容 OpenAI chat/completions 的接口
	ProviderGemini   = "gemini"
)

const (
	deepSeekBase = "https://api.deepseek.com/v1"
	geminiBase   = "https://generativelanguage.googleapis.com/v1beta"
)

// DefaultMarkers 回答中修复建议段落的起始标记
var DefaultMarkers = []string{"修复建议：", "修复建议:", "Remediation:"}

var (
	ErrUnsupportedProvider = errors.New("unsupported AI provider")
	ErrMissingAPIKey       = errors.New("AI API key is empty")
	ErrEmptyResponse       = errors.New("AI returned no content")
)

// Client 调用大模型接口为漏洞生成解释
type Client struct {
	Provider   string
	Model      string
	APIKey     string
	APIBase    string
	Markers    []string
	HTTPClient *http.Client
}

// NewClient 按提供方填充默认模型与接口地址
func NewClient(provider, model, apiKey, apiBase string, timeout time.Duration) *Client {
	if provider == "" {
		provider = ProviderDeepSeek
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if model == "" {
		switch provider {
		case ProviderGemini:
			model = "gemini-pro"
		case ProviderDeepSeek:
			model = "deepseek-chat"
		}
	}
	return &Client{
		Provider:   provider,
		Model:      model,
		APIKey:     apiKey,
		APIBase:    strings.TrimRight(apiBase, "/"),
		Markers:    DefaultMarkers,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Explain 请求单条漏洞的解释，回答按修复建议标记拆分为两段
func (c *Client) Explain(ctx context.Context, f core.Finding) (core.AIAnnotation, error) {
	text, err := c.complete(ctx, Prompt(f))
	if err != nil {
		return core.AIAnnotation{}, err
	}
	return Split(text, c.Markers), nil
}

// Check 发送一个简单问候，确认接口可用
func (c *Client) Check(ctx context.Context) bool {
	text, err := c.complete(ctx, "你好，请简单回复“ok”。")
	return err == nil && strings.TrimSpace(text) != ""
}

// Prompt 构造单条漏洞的提问
func Prompt(f core.Finding) string {
	d := core.Details{Description: f.Raw, Severity: f.Severity}
	if f.Details != nil {
		d = *f.Details
		if d.Description == "" {
			d.Description = f.Raw
		}
	}
	return fmt.Sprintf("漏洞名称：%s\n类型：%s\n等级：%s\nURL：%s\n描述：%s\n请详细解释该漏洞、利用方式和修复建议。修复建议部分请以“修复建议：”开头。",
		d.Name, d.Type, d.Severity, d.URL, d.Description)
}

// Split 在最早出现的标记处拆分；没有标记时整段作为描述
func Split(text string, markers []string) core.AIAnnotation {
	at, width := -1, 0
	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(text, m); i >= 0 && (at < 0 || i < at) {
			at, width = i, len(m)
		}
	}
	if at < 0 {
		return core.AIAnnotation{Description: strings.TrimSpace(text)}
	}
	return core.AIAnnotation{
		Description: strings.TrimSpace(text[:at]),
		Remediation: strings.TrimSpace(text[at+width:]),
	}
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	switch c.Provider {
	case ProviderDeepSeek, ProviderOpenAI:
		return c.callChat(ctx, prompt)
	case ProviderGemini:
		return c.callGemini(ctx, prompt)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, c.Provider)
	}
}

// DeepSeek / OpenAI 兼容格式
func (c *Client) callChat(ctx context.Context, prompt string) (string, error) {
	base := c.APIBase
	if base == "" {
		base = deepSeekBase
	}

	payload := map[string]interface{}{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	if err := c.post(ctx, base+"/chat/completions", headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Choices) > 0 && result.Choices[0].Message.Content != "" {
		return result.Choices[0].Message.Content, nil
	}
	return "", ErrEmptyResponse
}

// Google Gemini (REST API)，key 通过请求头传递
func (c *Client) callGemini(ctx context.Context, prompt string) (string, error) {
	base := c.APIBase
	if base == "" {
		base = geminiBase
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", base, c.Model)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	headers := map[string]string{"x-goog-api-key": c.APIKey}
	if err := c.post(ctx, url, headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", ErrEmptyResponse
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
