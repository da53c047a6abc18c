package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HeuristicDetector flags bodies that look like client-rendered shells
// using simple HTML signals. A page matching any known content selector is
// never promoted; otherwise a tiny body or an SPA framework marker is.
type HeuristicDetector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// NewHeuristicDetector constructs a detector with the configured thresholds.
func NewHeuristicDetector(minBytes int, keywords []string) *HeuristicDetector {
	lowerKeywords := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowerKeywords = append(lowerKeywords, bytes.ToLower([]byte(kw)))
	}
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		keywords:     lowerKeywords,
	}
}

// ShouldPromote reports whether the body warrants a headless render.
func (d *HeuristicDetector) ShouldPromote(body []byte) bool {
	if d == nil || len(body) == 0 {
		return false
	}
	if d.hasContentRegion(body) {
		return false
	}
	if d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes {
		return true
	}
	return d.containsKeywords(body)
}

func (d *HeuristicDetector) hasContentRegion(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range contentSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (d *HeuristicDetector) containsKeywords(body []byte) bool {
	if len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}
