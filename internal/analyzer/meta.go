package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const (
	minTitleLength       = 10
	maxTitleLength       = 60
	minDescriptionLength = 50
	maxDescriptionLength = 160
)

func analyzeMeta(doc *goquery.Document, a *model.PageAnalysis) {
	m := &a.Meta
	m.Title = collapse(doc.Find("title").First().Text())
	m.Description = metaContent(doc, "description")
	m.Keywords = metaContent(doc, "keywords")
	m.Robots = metaContent(doc, "robots")
	m.Viewport = metaContent(doc, "viewport")
	m.OGTitle = metaContent(doc, "og:title")
	m.OGDescription = metaContent(doc, "og:description")
	m.OGImage = metaContent(doc, "og:image")
	m.TwitterCard = metaContent(doc, "twitter:card")
	m.Canonical = linkHref(doc, "canonical")

	switch n := utf8.RuneCountInString(m.Title); {
	case n == 0:
		a.AddIssue(model.SeverityError, "Missing title tag", "title")
	case n < minTitleLength:
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("Title too short (%d chars, recommended %d-%d)", n, minTitleLength, maxTitleLength), "title")
	case n > maxTitleLength:
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("Title too long (%d chars, recommended %d-%d)", n, minTitleLength, maxTitleLength), "title")
	}

	switch n := utf8.RuneCountInString(m.Description); {
	case n == 0:
		a.AddIssue(model.SeverityWarning, "Missing meta description", `meta[name="description"]`)
	case n < minDescriptionLength:
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("Meta description too short (%d chars, recommended %d-%d)", n, minDescriptionLength, maxDescriptionLength),
			`meta[name="description"]`)
	case n > maxDescriptionLength:
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("Meta description too long (%d chars, recommended %d-%d)", n, minDescriptionLength, maxDescriptionLength),
			`meta[name="description"]`)
	}

	var missingOG []string
	for _, tag := range []struct{ name, value string }{
		{"og:title", m.OGTitle},
		{"og:description", m.OGDescription},
		{"og:image", m.OGImage},
	} {
		if tag.value == "" {
			missingOG = append(missingOG, tag.name)
		}
	}
	if len(missingOG) > 0 {
		a.AddIssue(model.SeverityInfo, "Missing Open Graph tags", strings.Join(missingOG, ", "))
	}
	if m.TwitterCard == "" {
		a.AddIssue(model.SeverityInfo, "Missing Twitter Card tag", `meta[name="twitter:card"]`)
	}
	if m.Canonical == "" {
		a.AddIssue(model.SeverityInfo, "Missing canonical URL", `link[rel="canonical"]`)
	}
}

// metaContent returns the content of the first meta tag whose name or
// property equals key, ignoring case.
func metaContent(doc *goquery.Document, key string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(attr(s, "name"), key) || strings.EqualFold(attr(s, "property"), key) {
			content = attr(s, "content")
			return false
		}
		return true
	})
	return content
}

// linkHref returns the href of the first link element whose rel contains
// the token rel.
func linkHref(doc *goquery.Document, rel string) string {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasRelToken(attr(s, "rel"), rel) {
			href = attr(s, "href")
			return false
		}
		return true
	})
	return href
}

func hasRelToken(rel, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(rel)) {
		if t == token {
			return true
		}
	}
	return false
}
