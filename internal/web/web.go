// Package web embeds the HTML templates and static assets of the catalogue
// pages.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses the embedded page templates. Templates are addressed by
// file name ("index.html", "create.html", "edit.html").
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"checked": func(b bool) template.HTMLAttr {
			if b {
				return "checked"
			}
			return ""
		},
	}).ParseFS(templateFS, "templates/*.html"))
}

// StaticFS serves the embedded static assets rooted at static/.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
