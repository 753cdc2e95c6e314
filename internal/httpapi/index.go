package httpapi

import (
	"net/http"
	"time"
)

// indexHTML is a minimal stand-in for the original implementation's
// Jinja2-rendered index.html — static-asset templating is out of scope
// here, but the route itself (and its 600-second cache window) is not.
const indexHTML = `<!DOCTYPE html>
<html>
<head><title>needle</title></head>
<body>
<h1>needle</h1>
<p>A/B test assignment and reporting server.</p>
<ul>
<li><a href="/user?user-id=1&user-signup-date=2024-01-01">/user</a></li>
<li><a href="/experiments">/experiments</a></li>
<li><a href="/healthz">/healthz</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
</body>
</html>
`

// Index serves GET /: a static landing page, cached for 600 seconds to
// match the original site_root handler's cache window.
func Index(w http.ResponseWriter, r *http.Request) {
	SetCacheHeaders(w, 600*time.Second)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexHTML))
}
