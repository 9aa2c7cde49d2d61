package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		tmpl  string
		ports map[string]int
		want  string
	}{
		{"two tokens", "${a}-${b}", map[string]int{"a": 1, "b": 2}, "1-2"},
		{"unknown token kept", "${z}", map[string]int{"a": 1}, "${z}"},
		{"exact name match", "${app}:${app2}", map[string]int{"app": 3000, "app2": 4000}, "3000:4000"},
		{"prefix does not match", "${app2}", map[string]int{"app": 3000}, "${app2}"},
		{"no tokens", "localhost", map[string]int{"a": 1}, "localhost"},
		{"repeated token", "${a}/${a}", map[string]int{"a": 7}, "7/7"},
		{"url", "postgres://dev@localhost:${postgres}/app", map[string]int{"postgres": 47110}, "postgres://dev@localhost:47110/app"},
		{"bare dollar", "$a ${", map[string]int{"a": 1}, "$a ${"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(map[string]string{"K": tt.tmpl}, tt.ports)
			assert.Equal(t, tt.want, got["K"])
		})
	}
}

func TestRenderIsRepeatable(t *testing.T) {
	templates := map[string]string{"URL": "http://localhost:${app}", "OTHER": "${missing}"}
	ports := map[string]int{"app": 47100}

	first := Render(templates, ports)
	second := Render(templates, ports)
	assert.Equal(t, first, second)
	assert.Equal(t, "http://localhost:${app}", templates["URL"], "input must not be modified")
}

func TestRenderWithVars(t *testing.T) {
	templates := map[string]string{
		"NAME": "lanes-${SESSION_ID}",
		"PORT": "${app}",
		"BOTH": "${MODE}:${app}",
	}
	ports := map[string]int{"app": 47100, "MODE": 1}
	vars := map[string]string{"SESSION_ID": "001", "MODE": "docker"}

	got := RenderWith(templates, ports, vars)
	assert.Equal(t, "lanes-001", got["NAME"])
	assert.Equal(t, "47100", got["PORT"])
	assert.Equal(t, "1:47100", got["BOTH"], "ports take precedence over variables")
}
