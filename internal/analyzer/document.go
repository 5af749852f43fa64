package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

func analyzeDocument(doc *goquery.Document, a *model.PageAnalysis) {
	a.Lang = attr(doc.Find("html").First(), "lang")
	a.HasViewport = doc.Find("meta").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(attr(s, "name"), "viewport")
	}).Length() > 0
	a.HasFavicon = doc.Find("link[rel]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasRelToken(attr(s, "rel"), "icon")
	}).Length() > 0

	if a.Lang == "" {
		a.AddIssue(model.SeverityWarning, "Missing lang attribute on <html>", "html")
	}
	if !a.HasViewport {
		a.AddIssue(model.SeverityError, "Missing viewport meta tag", `meta[name="viewport"]`)
	}
	if !a.HasFavicon {
		a.AddIssue(model.SeverityInfo, "Missing favicon", `link[rel="icon"]`)
	}
}
