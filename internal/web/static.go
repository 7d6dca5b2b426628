package web

import (
	"embed"
)

// staticFiles holds the control page (HTML, CSS, JS) served under / and /static/.
//
//go:embed static/*
var staticFiles embed.FS
