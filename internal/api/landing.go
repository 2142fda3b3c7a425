package api

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RAG Pipeline</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  a { color: #38bdf8; text-decoration: none; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  code, .endpoint { font-family: "SF Mono", "Fira Code", Menlo, monospace; }
  .endpoint { font-size: 0.9rem; color: #a5b4fc; }
  .status { display: inline-block; width: 8px; height: 8px; background: #22c55e; border-radius: 50%; margin-right: 0.5rem; }
</style>
</head>
<body>
<div class="card">
  <h1>RAG Pipeline</h1>
  <p class="subtitle">Upload documents, search them semantically and chat with cited answers.</p>

  <div class="section">
    <div class="section-title">Ingest a file</div>
    <pre><code>curl -F file=@handbook.pdf -F collection=hr http://HOST/api/documents</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><span class="status"></span><span class="endpoint">POST /api/documents</span> &mdash; ingest text or a file</p>
    <p><span class="status"></span><a href="/api/documents" class="endpoint">GET /api/documents</a> &mdash; list documents</p>
    <p><span class="status"></span><span class="endpoint">GET /api/search?q=</span> &mdash; semantic search</p>
    <p><span class="status"></span><a href="/api/stats" class="endpoint">GET /api/stats</a> &mdash; collection freshness</p>
    <p><span class="status"></span><span class="endpoint">POST /api/chat</span> &mdash; streamed answers (SSE)</p>
    <p><span class="status"></span><a href="/health" class="endpoint">GET /health</a> &mdash; health check</p>
    {{- if .MCP}}
    <p><span class="status"></span><a href="/mcp" class="endpoint">/mcp</a> &mdash; MCP Streamable HTTP</p>
    {{- end}}
  </div>
</div>
</body>
</html>`))

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(mcpEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = landingTemplate.Execute(w, struct{ MCP bool }{MCP: mcpEnabled})
	}
}
