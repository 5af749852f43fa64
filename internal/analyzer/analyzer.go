package analyzer

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/siteaudit/internal/model"
)

// MsgParseFailed is the single issue reported for a document that cannot be
// parsed.
const MsgParseFailed = "HTML parsing failed"

// Analyze inspects rawHTML, fetched from pageURL, and reports what it found.
// It never returns nil.
func Analyze(rawHTML, pageURL string) *model.PageAnalysis {
	analysis := model.NewPageAnalysis()

	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		analysis.AddIssue(model.SeverityError, MsgParseFailed, "")
		return analysis
	}
	doc := goquery.NewDocumentFromNode(root)

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		base = u
	}

	analyzeMeta(doc, analysis)
	analyzeHeadings(doc, analysis)
	analyzeImages(doc, analysis)
	analyzeLinks(doc, base, analysis)
	analyzeSchema(doc, analysis)
	analyzePerformance(doc, analysis)
	analyzeAccessibility(doc, analysis)
	analyzeDocument(doc, analysis)

	return analysis
}

// truncate caps s at n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// collapse trims s and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// attr returns the trimmed value of an attribute, or "" when absent.
func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// hasAttr reports whether the first node of s carries the attribute.
func hasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}
