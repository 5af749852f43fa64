package analyzer

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const maxListedImages = 50

func analyzeImages(doc *goquery.Document, a *model.PageAnalysis) {
	stats := &a.Images
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		stats.Total++

		if attr(s, "alt") != "" {
			stats.WithAlt++
			return
		}
		stats.WithoutAltCount++
		if len(stats.WithoutAlt) < maxListedImages {
			stats.WithoutAlt = append(stats.WithoutAlt, imageSource(s))
		}
	})

	if stats.WithoutAltCount > 0 {
		a.AddIssue(model.SeverityWarning, fmt.Sprintf("%d images missing alt text", stats.WithoutAltCount), "img")
	}
}

// imageSource returns src, falling back to the lazy-loading data-src.
func imageSource(s *goquery.Selection) string {
	if src := attr(s, "src"); src != "" {
		return src
	}
	return attr(s, "data-src")
}
