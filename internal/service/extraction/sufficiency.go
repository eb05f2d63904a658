package extraction

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// sufficientTextThreshold is the recognizable-character count above which
// embedded PDF text is trusted and OCR is skipped.
const sufficientTextThreshold = 100

// expectedCharsPerPage normalizes text density.
const expectedCharsPerPage = 250.0

var meaningfulText = regexp.MustCompile(`[a-zA-Z]{2,}\s+([a-zA-Z]{2,}\s+){2,}`)

func isRecognizable(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r',
		'.', ',', ';', ':', '!', '?', '(', ')', '[', ']', '{', '}', '"', '\'', '`', '-':
		return true
	}
	return false
}

func recognizableCount(text string) int {
	n := 0
	for _, r := range text {
		if isRecognizable(r) {
			n++
		}
	}
	return n
}

// IsTextSufficient reports whether text holds more than 100 letters, digits,
// whitespace or common punctuation characters.
func IsTextSufficient(text string) bool {
	return recognizableCount(text) > sufficientTextThreshold
}

// TextMetrics summarizes how usable extracted text looks.
type TextMetrics struct {
	// Density is characters per page against 250 expected, capped at 1.
	Density float64 `json:"density"`
	// Quality is the share of recognizable characters.
	Quality float64 `json:"quality"`
	// Meaningful is set when at least three consecutive words appear.
	Meaningful bool `json:"meaningful"`
}

// AnalyzeText computes metrics for text spread over pages.
func AnalyzeText(text string, pages int) TextMetrics {
	var m TextMetrics
	total := utf8.RuneCountInString(text)
	if pages > 0 {
		m.Density = min(float64(total)/float64(pages)/expectedCharsPerPage, 1.0)
	}
	if total > 0 {
		m.Quality = float64(recognizableCount(text)) / float64(total)
	}
	m.Meaningful = meaningfulText.MatchString(text)
	return m
}

func (m TextMetrics) String() string {
	return fmt.Sprintf("density=%.2f quality=%.2f meaningful=%t", m.Density, m.Quality, m.Meaningful)
}
