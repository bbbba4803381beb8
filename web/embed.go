package web

import (
	"embed"
	"io/fs"
)

// templateFS embeds the HTML templates used to render cards and the
// friend-link directory.
//
//go:embed templates/*.tmpl
var templateFS embed.FS

// FS returns the embedded filesystem containing the templates, rooted at the
// "templates" directory.
func FS() (fs.FS, error) {
	return fs.Sub(templateFS, "templates")
}
