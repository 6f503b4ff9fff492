package handlers

import (
	"html/template"
	"net/http"

	"stream-renamer/work/logger"
	"stream-renamer/work/proxy"
)

var configureTemplate = template.Must(template.New("configure").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Stream Renamer</title>
<style>
body{font-family:system-ui,sans-serif;background:#111;color:#eee;max-width:40rem;margin:3rem auto;padding:0 1rem}
input{width:100%;padding:.6rem;margin:.5rem 0;border-radius:4px;border:1px solid #444;background:#222;color:#eee}
button{padding:.6rem 1.2rem;border:0;border-radius:4px;background:#7b5bf5;color:#fff;cursor:pointer}
code{display:block;word-break:break-all;background:#222;padding:.6rem;margin-top:1rem;border-radius:4px}
</style>
</head>
<body>
<h1>Stream Renamer</h1>
<p>Paste the manifest URL of the addon whose streams should be renamed.</p>
<p>The result is the configured addon base URL. This service answers
<em>&lt;base&gt;/stream/{type}/{id}.json</em> under it; the addon manifest is
served by the Stremio addon SDK front end, which should point its stream
handler at this base.</p>
<label for="source">Upstream manifest URL</label>
<input id="source" type="url" value="{{.Source}}">
<label><input id="tv" type="checkbox" style="width:auto"> Always treat this install as a TV</label>
<p><button id="build" type="button">Build base URL</button></p>
<code id="out"></code>
<script>
document.getElementById("build").addEventListener("click", function () {
  var cfg = {sourceAddonUrl: document.getElementById("source").value.trim()};
  if (document.getElementById("tv").checked) { cfg.platform = "tv"; }
  var base = {{.BaseURL}} || window.location.origin;
  var url = base + "/" + encodeURIComponent(JSON.stringify(cfg));
  document.getElementById("out").textContent = url;
  if (navigator.clipboard) { navigator.clipboard.writeText(url); }
});
</script>
</body>
</html>
`))

// HandleConfigure renders the page that builds a configured install URL. A
// {config} segment, when present, pre-fills the form.
func HandleConfigure(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := parseUserConfig(varOrEmpty(r, "config")).SourceAddonURL
		if source == "" {
			source = sp.Config.DefaultSourceURL
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := struct {
			Source  string
			BaseURL string
		}{Source: source, BaseURL: sp.Config.BaseURL}

		if err := configureTemplate.Execute(w, data); err != nil {
			logger.Error("{handlers - HandleConfigure} failed to render page: %v", err)
		}
	}
}
