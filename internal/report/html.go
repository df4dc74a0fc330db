package report

import (
	"bytes"
	"html/template"
	"io"
	"strings"

	"github.com/25smoking/Pallas/internal/core"
	"github.com/yuin/goldmark"
)

const reportTemplate = `
<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>漏洞扫描结果</title>
    <style>
        :root {
            --bg-color: #f8f9fa;
            --card-bg: #ffffff;
            --text-color: #333;
            --critical: #dc3545;
            --high: #fd7e14;
            --medium: #ffc107;
            --low: #28a745;
            --info: #17a2b8;
            --unknown: #6c757d;
            --border-color: #dee2e6;
        }
        body { font-family: 'Segoe UI', '微软雅黑', sans-serif; background: var(--bg-color); color: var(--text-color); margin: 0; padding: 20px; }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { text-align: center; margin-bottom: 30px; }
        .stats { display: flex; gap: 20px; margin-bottom: 20px; }
        .stat-card { flex: 1; background: var(--card-bg); padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); text-align: center; }
        .stat-num { font-size: 2em; font-weight: bold; }
        .critical { color: var(--critical); }
        .high { color: var(--high); }
        .medium { color: var(--medium); }
        .low { color: var(--low); }
        .info { color: var(--info); }
        .unknown { color: var(--unknown); }

        .group-title { font-size: 1.3em; font-weight: bold; margin: 24px 0 12px; }
        .finding-card { background: var(--card-bg); border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); margin-bottom: 15px; border-left: 5px solid #ccc; overflow: hidden; }
        .finding-card.critical { border-left-color: var(--critical); }
        .finding-card.high { border-left-color: var(--high); }
        .finding-card.medium { border-left-color: var(--medium); }
        .finding-card.low { border-left-color: var(--low); }
        .finding-card.info { border-left-color: var(--info); }

        .finding-header { padding: 15px; background: rgba(0,0,0,0.02); display: flex; justify-content: space-between; align-items: center; cursor: pointer; }
        .finding-title { font-weight: bold; display: flex; align-items: center; gap: 10px; color: var(--text-color); }
        .badge { padding: 4px 8px; border-radius: 4px; color: white; font-size: 0.8em; text-transform: uppercase; }
        .bg-critical { background: var(--critical); }
        .bg-high { background: var(--high); }
        .bg-medium { background: var(--medium); color: black; }
        .bg-low { background: var(--low); }
        .bg-info { background: var(--info); }
        .bg-unknown { background: var(--unknown); }

        .finding-body { padding: 15px; display: none; border-top: 1px solid var(--border-color); }
        .finding-body.open { display: block; }
        .detail-row { margin-bottom: 10px; }
        .label { font-weight: bold; color: #666; }
        .ai-explain { background: #e3f2fd; border-radius: 6px; padding: 8px 12px; margin-top: 8px; }
        .ai-fix { background: #fff3e0; border-radius: 6px; padding: 8px 12px; margin-top: 8px; }
        code { background: #eee; padding: 2px 5px; border-radius: 3px; word-break: break-all; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>漏洞扫描结果</h1>
            <p>生成时间: {{ .GeneratedAt }} | 主机: {{ .Host }} | {{ .OS }}</p>
        </div>

        <div class="stats">
            {{ range .Stats }}
            <div class="stat-card">
                <div class="stat-num {{ .Level }}">{{ .Count }}</div>
                <div>{{ .Level }}</div>
            </div>
            {{ end }}
        </div>

        <div id="findings">
            {{ range .Groups }}
            <div class="group-title {{ .Level }}">{{ .Title }}</div>
            {{ range .Findings }}
            <div class="finding-card {{ .Level }}">
                <div class="finding-header" onclick="this.nextElementSibling.classList.toggle('open')">
                    <div class="finding-title">
                        <span class="badge bg-{{ .Level }}">{{ .Level }}</span>
                        {{ .Title }}
                    </div>
                    <div>▼</div>
                </div>
                <div class="finding-body">
                    {{ with .Details }}
                    <div class="detail-row"><span class="label">名称:</span> {{ or .Name "-" }}</div>
                    <div class="detail-row"><span class="label">类型:</span> {{ or .Type "-" }}</div>
                    <div class="detail-row"><span class="label">URL:</span> <code>{{ or .URL "-" }}</code></div>
                    {{ if .Description }}<div class="detail-row"><span class="label">详情:</span> {{ .Description }}</div>{{ end }}
                    {{ end }}
                    <div class="detail-row"><span class="label">原始输出:</span> <code>{{ .Raw }}</code></div>
                    {{ if .Explain }}<div class="ai-explain"><span class="label">AI 解释:</span> {{ .Explain }}</div>{{ end }}
                    {{ if .Fix }}<div class="ai-fix"><span class="label">修复建议:</span> {{ .Fix }}</div>{{ end }}
                </div>
            </div>
            {{ end }}
            {{ else }}
            <div style="text-align: center; padding: 40px; color: #666;">
                未发现漏洞 🎉
            </div>
            {{ end }}
        </div>
    </div>
</body>
</html>
`

var reportTmpl = template.Must(template.New("report").Parse(reportTemplate))

type htmlStat struct {
	Level string
	Count int
}

type htmlFinding struct {
	core.Finding
	Level   string
	Title   string
	Explain template.HTML
	Fix     template.HTML
}

type htmlGroup struct {
	Level    string
	Title    string
	Findings []htmlFinding
}

type htmlData struct {
	GeneratedAt string
	Host        string
	OS          string
	Stats       []htmlStat
	Groups      []htmlGroup
}

// WriteHTML 分组输出独立的 HTML 文档，分组顺序固定为 critical → unknown
func WriteHTML(w io.Writer, res *core.GroupedResult, meta Meta) error {
	md := goldmark.New()
	data := htmlData{
		GeneratedAt: meta.timestamp(),
		Host:        meta.Host,
		OS:          meta.OS,
	}

	for _, level := range core.SeverityOrder {
		findings := res.Grouped[level]
		if level != core.SeverityUnknown {
			data.Stats = append(data.Stats, htmlStat{Level: level, Count: len(findings)})
		}
		if len(findings) == 0 {
			continue
		}

		group := htmlGroup{Level: level, Title: strings.ToUpper(level)}
		for _, f := range findings {
			group.Findings = append(group.Findings, htmlFinding{
				Finding: f,
				Level:   level,
				Title:   f.Name(),
				Explain: markdown(md, f.AI.Description),
				Fix:     markdown(md, f.AI.Remediation),
			})
		}
		data.Groups = append(data.Groups, group)
	}

	return reportTmpl.Execute(w, data)
}

// markdown 把 AI 返回的 markdown 转为 HTML；goldmark 默认丢弃原始 HTML 标签
func markdown(md goldmark.Markdown, text string) template.HTML {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}
