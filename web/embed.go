// Package web embeds the request form served at the service root.
package web

import "embed"

// Content holds the embedded form (index.html).
//
//go:embed index.html
var Content embed.FS
