package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"aamonitor/internal/api"
)

// Report formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// FormatReport renders a diagnostics report. Key order is preserved in every
// format.
func FormatReport(report api.Object, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		raw, err := report.MarshalJSON()
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return "", err
		}
		return buf.String() + "\n", nil
	case FormatYAML, "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return "", err
		}
		if err := enc.Close(); err != nil {
			return "", err
		}
		return buf.String(), nil
	case FormatMarkdown, "md":
		return reportMarkdown(report), nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json, yaml or markdown)", format)
	}
}

// reportMarkdown lists top-level keys as sections. Nested objects become
// bullet lists, anything deeper is shown as inline JSON.
func reportMarkdown(report api.Object) string {
	var b strings.Builder
	b.WriteString("# Diagnostics\n")
	if report.Len() == 0 {
		b.WriteString("\n_Aucune donnée_\n")
		return b.String()
	}
	for _, key := range report.Keys() {
		raw, _ := report.Raw(key)
		var nested api.Object
		if err := json.Unmarshal(raw, &nested); err == nil && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			fmt.Fprintf(&b, "\n## %s\n\n", key)
			if nested.Len() == 0 {
				b.WriteString("_vide_\n")
				continue
			}
			for _, sub := range nested.Keys() {
				fmt.Fprintf(&b, "- **%s**: `%s`\n", sub, nested.Display(sub))
			}
			continue
		}
		fmt.Fprintf(&b, "\n**%s**: `%s`\n", key, report.Display(key))
	}
	return b.String()
}
