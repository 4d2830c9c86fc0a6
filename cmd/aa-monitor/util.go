package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"aamonitor/internal/tree"
)

var iconGlyphs = map[string]string{
	"check":         "✔",
	"error":         "✖",
	"x":             "✘",
	"sync~spin":     "⟳",
	"database":      "🗄",
	"folder":        "📁",
	"graph":         "📈",
	"warning":       "⚠",
	"primitive-dot": "•",
	"pulse":         "∿",
}

func iconGlyph(icon string) string {
	if g, ok := iconGlyphs[icon]; ok {
		return g
	}
	return "•"
}

func formatItem(item tree.Item, depth int) string {
	line := strings.Repeat("  ", depth) + iconGlyph(item.Icon) + " " + item.Label
	if item.Description != "" {
		line += "  " + item.Description
	}
	return line
}

// treeLines flattens a provider depth-first. expand decides whether a
// collapsible node shows its children; nil expands everything.
func treeLines(p tree.Provider, parent tree.Node, depth int, expand func(tree.Node) bool, style func(tree.Item) lipgloss.Style) []string {
	var lines []string
	for _, node := range p.GetChildren(parent) {
		item := node.Render()
		line := formatItem(item, depth)
		if style != nil {
			line = style(item).Render(line)
		}
		lines = append(lines, line)
		if item.Collapsible && (expand == nil || expand(node)) {
			lines = append(lines, treeLines(p, node, depth+1, expand, style)...)
		}
	}
	return lines
}

func compactSingleLine(text string, limit int) string {
	return truncate(strings.Join(strings.Fields(text), " "), limit)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func onOff(value bool) string {
	if value {
		return "ON"
	}
	return "OFF"
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ternary[T any](condition bool, whenTrue T, whenFalse T) T {
	if condition {
		return whenTrue
	}
	return whenFalse
}
