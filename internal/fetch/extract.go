package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TruncationMarker is appended when an excerpt is cut at the length cap.
const TruncationMarker = "... (truncated)"

// contentSelectors are tried in order; the first match wins. They cover
// the SmartEditor generations observed on Naver blogs, with a whole-body
// fallback when none match.
var contentSelectors = []string{
	".se-main-container", // SmartEditor One
	"#postViewArea",      // SmartEditor 2
	".post-view",
}

// Extract pulls the primary content region out of an HTML document,
// collapses whitespace and truncates to maxChars characters.
func Extract(body []byte, maxChars int) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var text string
	for _, sel := range contentSelectors {
		if node := doc.Find(sel); node.Length() > 0 {
			text = node.Text()
			break
		}
	}
	if text == "" {
		text = doc.Find("body").Text()
	}

	return truncateChars(collapseWhitespace(text), maxChars)
}

// collapseWhitespace squeezes all whitespace runs (including newlines)
// into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateChars cuts s at max characters, not bytes, so multi-byte text
// survives intact.
func truncateChars(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationMarker
}
