package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		if assert.Len(t, body.Messages, 1) {
			assert.Contains(t, body.Messages[0].Content, "漏洞名称：CVE-2021-44228")
		}

		if status != http.StatusOK {
			http.Error(w, "denied", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var log4j = core.Finding{
	Raw:      "[CVE-2021-44228] [http] [critical] http://target/api",
	Severity: "critical",
	Details:  &core.Details{Name: "CVE-2021-44228", Type: "http", Severity: "critical", URL: "http://target/api"},
}

func TestExplainSplitsRemediation(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "JNDI 注入导致远程代码执行。\n修复建议：升级 log4j 至 2.17.1。")
	c := NewClient(ProviderDeepSeek, "", "test-key", srv.URL, time.Second)

	ann, err := c.Explain(context.Background(), log4j)
	require.NoError(t, err)
	assert.Equal(t, "JNDI 注入导致远程代码执行。", ann.Description)
	assert.Equal(t, "升级 log4j 至 2.17.1。", ann.Remediation)
}

func TestExplainPropagatesHTTPError(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, "")
	c := NewClient(ProviderDeepSeek, "", "test-key", srv.URL, time.Second)

	ann, err := c.Explain(context.Background(), log4j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.True(t, ann.Empty())
}

func TestExplainEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(ProviderOpenAI, "gpt-4o-mini", "k", srv.URL, time.Second).Explain(context.Background(), log4j)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExplainWithoutKey(t *testing.T) {
	_, err := NewClient(ProviderDeepSeek, "", "", "http://127.0.0.1:1", time.Second).Explain(context.Background(), log4j)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestUnsupportedProvider(t *testing.T) {
	_, err := NewClient("claude-local", "", "k", "", time.Second).Explain(context.Background(), log4j)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"desc Remediation: patch"}]}}]}`))
	}))
	defer srv.Close()

	ann, err := NewClient(ProviderGemini, "", "gk", srv.URL, time.Second).Explain(context.Background(), log4j)
	require.NoError(t, err)
	assert.Equal(t, core.AIAnnotation{Description: "desc", Remediation: "patch"}, ann)
}

func TestCheck(t *testing.T) {
	ok := chatServerFor(t, "ok")
	assert.True(t, NewClient(ProviderDeepSeek, "", "k", ok.URL, time.Second).Check(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.False(t, NewClient(ProviderDeepSeek, "", "k", down.URL, time.Second).Check(context.Background()))
}

func chatServerFor(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.AIAnnotation
	}{
		{"no marker", "  just a description ", core.AIAnnotation{Description: "just a description"}},
		{"chinese marker", "描述\n修复建议：打补丁", core.AIAnnotation{Description: "描述", Remediation: "打补丁"}},
		{"earliest marker wins", "a Remediation: b 修复建议：c", core.AIAnnotation{Description: "a", Remediation: "b 修复建议：c"}},
		{"empty", "", core.AIAnnotation{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.text, DefaultMarkers))
		})
	}
}

func TestPromptFallsBackToRaw(t *testing.T) {
	p := Prompt(core.Finding{Raw: "weird [high] line", Severity: "high"})
	assert.Contains(t, p, "等级：high")
	assert.Contains(t, p, "描述：weird [high] line")
}
