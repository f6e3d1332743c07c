// Package webui embeds the browser control panel's static assets into the
// binary, the same single-binary deployment shape as the teacher's
// pkg/embedded.
package webui

import "embed"

//go:embed dist
var dist embed.FS

// Dist is the embedded filesystem rooted at the control panel's static
// asset directory, ready to be wrapped in http.FS by the caller.
func Dist() embed.FS { return dist }
