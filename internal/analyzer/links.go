package analyzer

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const maxListedBrokenLinks = 20

// skipSchemes are href prefixes that are not navigable page links.
var skipSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// IsNavigableHref reports whether href can lead to another page.
func IsNavigableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range skipSchemes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

func analyzeLinks(doc *goquery.Document, base *url.URL, a *model.PageAnalysis) {
	baseHost := ""
	if base != nil {
		baseHost = strings.ToLower(base.Hostname())
	}

	stats := &a.Links
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := attr(s, "href")
		if !IsNavigableHref(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			if len(stats.Broken) < maxListedBrokenLinks {
				stats.Broken = append(stats.Broken, href)
			}
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if strings.EqualFold(ref.Hostname(), baseHost) {
			stats.Internal++
		} else {
			stats.External++
		}
	})
}
