package transport

import (
	"html/template"

	"github.com/anime-shed/palm-oracle-go/pkg/models"
)

// pageView is what the page template renders
type pageView struct {
	*models.ReadingResponse
	RefreshSeconds int
}

// image sources are data URLs built by imagedata.Encode
var pageFuncs = template.FuncMap{
	"safeURL": func(s string) template.URL { return template.URL(s) },
}

var pageTemplate = template.Must(template.New("page").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{- if eq .Phase "loading"}}
<meta http-equiv="refresh" content="{{.RefreshSeconds}}">
{{- end}}
<title>AI 灵境手相</title>
<style>
body { margin: 0; min-height: 100vh; background: #09090b; color: #d4d4d8; font-family: system-ui, sans-serif; display: flex; justify-content: center; }
main { width: 100%; max-width: 48rem; padding: 3rem 1rem; text-align: center; }
h1 { font-family: Georgia, serif; font-size: 3rem; font-weight: 500; color: #f4f4f5; margin-bottom: .5rem; }
.tagline { color: #a1a1aa; margin-bottom: 3rem; }
.panel { border: 1px solid rgba(255,255,255,.1); background: rgba(255,255,255,.04); border-radius: 1.5rem; padding: 2.5rem; }
.upload { border-style: dashed; }
.upload input[type=url] { width: 70%; padding: .5rem; border-radius: .5rem; border: 1px solid #3f3f46; background: #18181b; color: inherit; }
button { cursor: pointer; padding: .6rem 1.4rem; border-radius: 999px; border: 1px solid rgba(255,255,255,.15); background: rgba(255,255,255,.06); color: #e4e4e7; }
button:hover { border-color: #a855f7; }
.portrait { width: 12rem; height: 12rem; border-radius: 50%; object-fit: cover; border: 4px solid rgba(255,255,255,.1); box-shadow: 0 0 40px rgba(168,85,247,.2); }
.reading { text-align: left; margin-top: 2rem; line-height: 1.7; }
.reading h1, .reading h2, .reading h3 { font-family: Georgia, serif; font-weight: 400; color: #f4f4f5; }
.error { margin-top: 1.5rem; padding: .8rem 1rem; border-radius: .75rem; background: rgba(69,10,10,.5); border: 1px solid rgba(127,29,29,.5); color: #fecaca; display: flex; align-items: center; justify-content: center; gap: .5rem; }
.error svg { flex-shrink: 0; }
.loading h3 { color: #e4e4e7; }
</style>
</head>
<body>
<main>
<h1>AI 灵境手相</h1>
<p class="tagline">探索掌纹中隐藏的命运密码。</p>

{{- if eq .Phase "loading"}}
<section class="panel loading">
  <h3>正在沟通灵界...</h3>
  <p>正在解读你的命运轨迹</p>
</section>
{{- else if eq .Phase "result"}}
<section>
  {{- with .Image}}
  <img class="portrait" src="{{.DataURL | safeURL}}" alt="你的手相">
  {{- end}}
  <div class="panel reading">{{.ReadingHTML}}</div>
  <form method="post" action="/reset"><p><button type="submit">再看一次</button></p></form>
</section>
{{- else}}
<section class="panel upload">
  <h3>洞悉你的命运</h3>
  <p>拍一张清晰的手掌照片，或上传已有图片以开始解读。</p>
  <form method="post" action="/reading" enctype="multipart/form-data">
    <p><input type="file" name="image" accept="image/*" required></p>
    <p><button type="submit">选择图片</button></p>
  </form>
  <form method="post" action="/reading/url">
    <p><input type="url" name="url" placeholder="https://" required> <button type="submit">读取链接</button></p>
  </form>
</section>
{{- end}}

{{- if .Error}}
<div class="error" role="alert">
  <svg class="alert-icon" width="18" height="18" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round" aria-hidden="true"><circle cx="12" cy="12" r="10"/><line x1="12" y1="8" x2="12" y2="12"/><line x1="12" y1="16" x2="12.01" y2="16"/></svg>
  <span>{{.Error}}</span>
</div>
<form method="post" action="/reset"><p><button type="submit">重新开始</button></p></form>
{{- end}}
</main>
</body>
</html>
`))
