// internal/driver/cdp/embed.go

package cdp

import _ "embed"

//go:embed listener.js
var listenerScript string
