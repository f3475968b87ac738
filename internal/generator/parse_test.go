package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFiles(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "two blocks with surrounding prose",
			text: "intro\n===FILE: a.js===\nconsole.log(1)\n===END FILE===\nbetween\n===FILE:  css/site.css ===\nbody{}\n===END FILE===\n",
			want: map[string]string{"a.js": "console.log(1)", "css/site.css": "body{}"},
		},
		{
			name: "crlf line endings",
			text: "===FILE: index.html===\r\n<p>x</p>\r\n===END FILE===",
			want: map[string]string{"index.html": "<p>x</p>"},
		},
		{
			name: "unterminated block",
			text: "===FILE: index.html===\n<p>x</p>\n",
			want: map[string]string{},
		},
		{
			name: "no markers",
			text: "just some text",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFiles(tt.text))
		})
	}
}
