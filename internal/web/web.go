// Package web holds the embedded listener page.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
