package utils

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

/**
 * Render a command and its arguments from templates
 * @param {string} command - Command template, e.g. "{{.SubmitTool}}"
 * @param {[]string} args - Argument templates, e.g. "{{.Count}}"
 * @param {any} data - Values referenced by the templates
 * @returns {string} Rendered command
 * @returns {[]string} Rendered arguments, empty results are dropped
 * @returns {error} Template parse or execution error
 */
func RenderCommand(command string, args []string, data any) (string, []string, error) {
	name, err := render("command", command, data)
	if err != nil {
		return "", nil, err
	}

	rendered := make([]string, 0, len(args))
	for _, arg := range args {
		value, err := render("arg", arg, data)
		if err != nil {
			return "", nil, fmt.Errorf("arg '%s': %w", arg, err)
		}
		if value = strings.TrimSpace(value); value != "" {
			rendered = append(rendered, value)
		}
	}
	return name, rendered, nil
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
