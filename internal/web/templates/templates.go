// Package templates embeds the HTML served by internal/web.
package templates

import "embed"

//go:embed *.html pages/*.html partials/*.html
var FS embed.FS
