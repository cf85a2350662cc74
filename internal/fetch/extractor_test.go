package fetch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor(200, zap.NewNop())
}

func filler(n int) string {
	words := make([]string, 0, n/5+1)
	for len(strings.Join(words, " ")) < n {
		words = append(words, fmt.Sprintf("word%d", len(words)))
	}
	return strings.Join(words, " ")
}

func TestExtractShortArticleIsTooShort(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	out := e.Extract([]byte(`<html><body><article>short</article></body></html>`), "https://example.org")
	require.False(t, out.OK)
	require.Equal(t, ClassTooShort, out.Class)
	require.Contains(t, out.Reason, "content too short")
	require.Contains(t, out.Reason, "5 chars")
}

func TestExtractPrefersArticleTag(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	body := filler(300)
	page := fmt.Sprintf(`<html><body><article>%s</article><main>%s extra main body</main></body></html>`, body, filler(300))
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.Equal(t, "extracted from article tag", out.Reason)
	require.Equal(t, body, out.Content)
}

func TestExtractFallsBackToMain(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	body := filler(300)
	page := fmt.Sprintf(`<html><body><nav>menu</nav><main>%s</main></body></html>`, body)
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.Equal(t, "extracted from main", out.Reason)
	require.Equal(t, body, out.Content)
}

func TestExtractRoleMainAttribute(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	body := filler(300)
	page := fmt.Sprintf(`<html><body><div role="main">%s</div></body></html>`, body)
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.Equal(t, "extracted from main", out.Reason)
}

func TestExtractLargestBlock(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	big := filler(400)
	page := fmt.Sprintf(
		`<html><body><div>small</div><section>%s</section><div>also small</div></body></html>`, big)
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.Equal(t, "extracted from largest block", out.Reason)
	require.Contains(t, out.Content, "word10")
}

func TestExtractJoinsParagraphs(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	// Paragraphs directly under body so no block-level candidate wraps
	// them all.
	p1, p2 := filler(150), filler(150)
	page := fmt.Sprintf(`<html><body><p>%s</p><p>%s</p></body></html>`, p1, p2)
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.Contains(t, out.Content, p1)
	require.Contains(t, out.Content, "\n\n")
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	out := e.Extract([]byte("   "), "https://example.org")
	require.False(t, out.OK)
	require.Equal(t, ClassNoContent, out.Class)

	out = e.Extract([]byte(`<html><body></body></html>`), "https://example.org")
	require.False(t, out.OK)
	require.Equal(t, ClassNoContent, out.Class)
	require.Contains(t, out.Reason, "no content")
}

func TestExtractSkipsScriptAndStyle(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	page := fmt.Sprintf(
		`<html><body><article><script>var x = %q;</script>%s</article></body></html>`,
		filler(500), filler(300))
	out := e.Extract([]byte(page), "https://example.org")
	require.True(t, out.OK)
	require.NotContains(t, out.Content, "var x")
}

func TestExtractMalformedMarkupDoesNotPanic(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	mangled := `<html><body><div><<<>%$#<article>` + filler(300) + `</artcle></body>`
	require.NotPanics(t, func() {
		out := e.Extract([]byte(mangled), "https://example.org")
		require.NotEmpty(t, out.Reason)
	})
}
