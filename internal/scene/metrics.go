package scene

import (
	"math"
	"strings"
	"unicode/utf8"
)

// TextMetrics measures wrapped text for note heights.
type TextMetrics interface {
	// TextHeight returns the height of text word-wrapped to width.
	TextHeight(text string, width float64) float64
}

// FixedMetrics approximates a proportional chart font with a fixed advance
// per character.
type FixedMetrics struct {
	CharWidth  float64
	LineHeight float64
}

// DefaultMetrics matches the 9pt chart font closely enough for layout.
var DefaultMetrics = FixedMetrics{CharWidth: 6, LineHeight: 14}

func (m FixedMetrics) TextHeight(text string, width float64) float64 {
	perLine := max(1, int(math.Floor(width/m.CharWidth)))
	lines := 0
	for _, para := range strings.Split(text, "\n") {
		lines += wrapCount(para, perLine)
	}
	return float64(max(1, lines)) * m.LineHeight
}

func wrapCount(para string, perLine int) int {
	words := strings.Fields(para)
	if len(words) == 0 {
		return 1
	}
	lines, col := 1, 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		switch {
		case col == 0:
			col = n
		case col+1+n <= perLine:
			col += 1 + n
		default:
			lines++
			col = n
		}
		for col > perLine {
			lines++
			col -= perLine
		}
	}
	return lines
}
