// Package web bundles the upload page template and the UI translations into the binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed locales/*.json
var locales embed.FS

//go:embed templates/*.html
var Templates embed.FS

// Locales returns the message files with locales/ stripped, e.g. "en.json".
func Locales() fs.FS {
	sub, err := fs.Sub(locales, "locales")
	if err != nil {
		panic(err)
	}
	return sub
}
