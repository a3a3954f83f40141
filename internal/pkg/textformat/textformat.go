// Package textformat renders report text in markdown.
package textformat

import (
	"strings"
)

const indent = "    "

func Bold(text string) string {
	return "**" + strings.TrimSpace(text) + "**"
}

func Heading1(text string) string {
	return "# " + strings.TrimSpace(text)
}

func Heading2(text string) string {
	return "## " + strings.TrimSpace(text)
}

func Heading3(text string) string {
	return "### " + strings.TrimSpace(text)
}

func Heading4(text string) string {
	return "#### " + strings.TrimSpace(text)
}

func Heading5(text string) string {
	return "##### " + strings.TrimSpace(text)
}

// Bullet returns a list item, the level starts at 1.
func Bullet(text string, level int) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat(indent, level-1) + "* " + strings.TrimSpace(text)
}

func Code(text string) string {
	return "`" + text + "`"
}

// Builder joins report lines.
type Builder struct {
	lines []string
}

func (b *Builder) Line(line string) *Builder {
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Lines(lines ...string) *Builder {
	b.lines = append(b.lines, lines...)
	return b
}

func (b *Builder) Empty() bool {
	return len(b.lines) == 0
}

func (b *Builder) String() string {
	return strings.Join(b.lines, "\n")
}
