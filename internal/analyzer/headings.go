package analyzer

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const maxHeadingLength = 200

func analyzeHeadings(doc *goquery.Document, a *model.PageAnalysis) {
	a.Headings.H1 = headingTexts(doc, "h1")
	a.Headings.H2 = headingTexts(doc, "h2")
	a.Headings.H3 = headingTexts(doc, "h3")

	h1 := len(a.Headings.H1)
	switch {
	case h1 == 0:
		a.AddIssue(model.SeverityError, "Missing H1 tag", "h1")
	case h1 > 1:
		a.AddIssue(model.SeverityWarning, fmt.Sprintf("Multiple H1 tags found (%d)", h1), "h1")
	}
	if h1 == 0 && len(a.Headings.H2) > 0 {
		a.AddIssue(model.SeverityWarning, "H2 found without H1: broken heading hierarchy", "h2")
	}
}

func headingTexts(doc *goquery.Document, tag string) []string {
	out := []string{}
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		out = append(out, truncate(collapse(s.Text()), maxHeadingLength))
	})
	return out
}
