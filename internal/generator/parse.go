// internal/generator/parse.go
package generator

import (
	"regexp"
	"strings"
)

var fileBlock = regexp.MustCompile(`(?s)===FILE:\s*(.+?)\s*===\n(.*?)\n===END FILE===`)

// ParseFiles extracts ===FILE: name=== ... ===END FILE=== blocks. Text outside blocks is ignored.
// A later block for the same name wins.
func ParseFiles(text string) map[string]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	files := make(map[string]string)
	for _, m := range fileBlock.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		files[name] = strings.TrimSpace(m[2])
	}
	return files
}
