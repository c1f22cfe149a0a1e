// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard page served at "/" (static/index.html)
// together with its stylesheet and script.
//
//go:embed static
var Files embed.FS
