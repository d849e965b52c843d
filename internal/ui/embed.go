package ui

import "embed"

// Static embeds the stat view console pages from ui/static/. The pages
// only render what the console's JSON endpoints return.
//
//go:embed static
var Static embed.FS
