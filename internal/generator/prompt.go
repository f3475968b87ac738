// internal/generator/prompt.go
package generator

import (
	"fmt"
	"strings"

	"pages-deployer/internal/attachments"
)

const systemPrompt = "You are an expert web developer who creates minimal, functional, production-ready web applications."

// buildPrompt renders the single user prompt. Attachments appear by name and media type only.
func buildPrompt(in Input) string {
	action := "Create"
	if in.IsUpdate {
		action = "Update"
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("You are a professional web developer. %s a web application based on the following requirements:", action))
	parts = append(parts, "")
	parts = append(parts, "Brief: "+in.Brief)
	parts = append(parts, "")
	parts = append(parts, "Requirements/Checks:")
	for _, check := range in.Checks {
		parts = append(parts, "- "+check)
	}

	if manifest := attachmentManifest(in.Attachments); manifest != "" {
		parts = append(parts, "")
		parts = append(parts, "Attachments provided:")
		parts = append(parts, manifest)
	}

	parts = append(parts,
		"",
		"Generate the following files:",
		"1. index.html - A complete, production-ready HTML file with embedded CSS and JavaScript",
		"2. README.md - A professional, verbose README with sections: Summary, Setup, Usage, Code Explanation, License",
		"",
		"Guidelines:",
		"- Make it minimal but fully functional. It should pass automated tests.",
		"- Use modern, clean UI design",
		"- Include all necessary code in index.html (no external dependencies if possible)",
		"- Make the README professional and detailed (summary, setup, usage, code explanation, license)",
		"- Ensure the code works immediately when deployed to GitHub Pages",
		"",
		"Output each file with clear markers:",
		"===FILE: filename===",
		"content",
		"===END FILE===",
	)
	return strings.Join(parts, "\n")
}

func attachmentManifest(atts []attachments.Materialized) string {
	lines := make([]string, 0, len(atts))
	for _, a := range atts {
		lines = append(lines, fmt.Sprintf("- %s (%s)", a.Name, a.MimeType))
	}
	return strings.Join(lines, "\n")
}
