package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Extractor locates the main content block of an HTML document through an
// ordered heuristic cascade. The first candidate whose text clears the
// qualification threshold wins.
type Extractor struct {
	minRunes int
	logger   *zap.Logger
}

// NewExtractor builds an Extractor with the given qualification threshold.
func NewExtractor(minRunes int, logger *zap.Logger) *Extractor {
	return &Extractor{minRunes: minRunes, logger: logger}
}

// MinRunes returns the qualification threshold.
func (e *Extractor) MinRunes() int {
	return e.minRunes
}

// Extract runs the cascade against raw HTML. The source URL resolves
// relative links for the readability pass and is informational otherwise.
func (e *Extractor) Extract(rawHTML []byte, sourceURL string) Outcome {
	if len(bytes.TrimSpace(rawHTML)) == 0 {
		return Failure(ClassNoContent, "no content extracted: empty document")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		// Parser failure degrades to a permissive tag strip rather than an
		// error; total failure is an empty result, never a panic.
		e.logger.Debug("html parse failed, using permissive fallback", zap.Error(err))
		return e.extractPermissive(rawHTML)
	}

	best := ""

	// 1) First semantic article node.
	if text := selectionText(doc.Find("article").First()); text != "" {
		if e.qualifies(text) {
			return Success(text, "extracted from article tag")
		}
		best = longer(best, text)
	}

	// 2) Explicit primary content region.
	mainSel := doc.Find("main").First()
	if mainSel.Length() == 0 {
		mainSel = doc.Find(`[role="main"]`).First()
	}
	if text := selectionText(mainSel); text != "" {
		if e.qualifies(text) {
			return Success(text, "extracted from main")
		}
		best = longer(best, text)
	}

	// 3) Longest block-level candidate.
	longest := ""
	doc.Find("div, section, article, main").Each(func(_ int, sel *goquery.Selection) {
		if text := selectionText(sel); len(text) > len(longest) {
			longest = text
		}
	})
	if longest != "" {
		if e.qualifies(longest) {
			return Success(longest, "extracted from largest block")
		}
		best = longer(best, longest)
	}

	// 4) All paragraphs joined with blank lines.
	var paragraphs []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := selectionText(sel); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		joined := strings.Join(paragraphs, "\n\n")
		if e.qualifies(joined) {
			return Success(joined, "extracted from paragraphs")
		}
		best = longer(best, joined)
	}

	// 5) Readability as the last resort before giving up.
	if text := e.readabilityText(rawHTML, sourceURL); text != "" {
		if e.qualifies(text) {
			return Success(text, "extracted via readability")
		}
		best = longer(best, text)
	}

	return e.underQualified(best)
}

// underQualified distinguishes "some content but too short" from "no
// content at all"; the distinction drives the rendering fallback.
func (e *Extractor) underQualified(best string) Outcome {
	if n := len([]rune(best)); n > 0 {
		return Failuref(ClassTooShort, "content too short: %d chars (min %d)", n, e.minRunes)
	}
	return Failure(ClassNoContent, "no content extracted")
}

func (e *Extractor) qualifies(text string) bool {
	return len([]rune(text)) > e.minRunes
}

func (e *Extractor) readabilityText(rawHTML []byte, sourceURL string) string {
	pageURL, err := url.Parse(sourceURL)
	if err != nil {
		pageURL = nil
	}
	article, err := readability.FromReader(bytes.NewReader(rawHTML), pageURL)
	if err != nil {
		e.logger.Debug("readability extraction failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

// extractPermissive strips tags with the tolerant tokenizer when the DOM
// parser cannot cope with the markup.
func (e *Extractor) extractPermissive(rawHTML []byte) Outcome {
	tokenizer := html.NewTokenizer(bytes.NewReader(rawHTML))
	var parts []string
	skipDepth := 0
	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			text := strings.Join(parts, "\n")
			if e.qualifies(text) {
				return Success(text, "extracted from permissive parse")
			}
			if text == "" {
				return Failure(ClassParseError, "parse error: no text recovered from malformed markup")
			}
			return e.underQualified(text)
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skipTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skipTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

// selectionText walks the selection's nodes and joins trimmed text nodes
// with newlines, skipping script and style subtrees.
func selectionText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var parts []string
	for _, node := range sel.Nodes {
		collectText(node, &parts)
	}
	return strings.Join(parts, "\n")
}

func collectText(node *html.Node, parts *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.ElementNode && skipTag(node.Data) {
		return
	}
	if node.Type == html.TextNode {
		if text := strings.TrimSpace(node.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}

func skipTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func longer(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}
