// Package appfs exposes embedded application assets to the rest of the app.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
