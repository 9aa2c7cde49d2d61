// Package render substitutes ${name} tokens in environment templates.
package render

import (
	"regexp"
	"strconv"
)

var tokenPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

// Render replaces every ${name} token whose name is a key of ports with the
// decimal port. Tokens naming anything else are left as written.
func Render(templates map[string]string, ports map[string]int) map[string]string {
	return RenderWith(templates, ports, nil)
}

// RenderWith is Render with extra string variables. A port and a variable
// sharing a name resolve to the port.
func RenderWith(templates map[string]string, ports map[string]int, vars map[string]string) map[string]string {
	out := make(map[string]string, len(templates))
	for key, tmpl := range templates {
		out[key] = Expand(tmpl, ports, vars)
	}
	return out
}

// Expand renders a single template string.
func Expand(tmpl string, ports map[string]int, vars map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[2 : len(token)-1]
		if port, ok := ports[name]; ok {
			return strconv.Itoa(port)
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}
