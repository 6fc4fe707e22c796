// Package templates provides the embedded HTML template and CSS for the run dashboard.
package templates

import "embed"

// FS contains embedded HTML templates and CSS files.
//
//go:embed *.html *.css
var FS embed.FS
