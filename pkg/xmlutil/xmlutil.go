// Package xmlutil provides XML escaping for prompt construction. Entity
// names and descriptions are user-controlled text; escaping them before
// embedding in XML-delimited prompt templates prevents prompt injection.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		// EscapeText only fails on invalid UTF-8; return original on error.
		return s
	}
	return buf.String()
}
