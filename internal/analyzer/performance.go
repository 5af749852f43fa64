package analyzer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const (
	maxInlineCSSBytes        = 50 * 1024
	maxRenderBlockingScripts = 3
	lazyLoadImageThreshold   = 10
)

func analyzePerformance(doc *goquery.Document, a *model.PageAnalysis) {
	p := &a.Performance

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		p.InlineCSSBytes += len(s.Text())
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("style")
		p.InlineCSSBytes += len(v)
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if !hasAttr(s, "src") {
			p.InlineJSBytes += len(s.Text())
		}
	})

	doc.Find("head script[src]").Each(func(_ int, s *goquery.Selection) {
		if hasAttr(s, "async") || hasAttr(s, "defer") {
			return
		}
		if strings.EqualFold(attr(s, "type"), "module") {
			return
		}
		p.RenderBlockingScripts++
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		p.TotalImages++
		if strings.EqualFold(attr(s, "loading"), "lazy") || hasAttr(s, "data-src") || hasAttr(s, "data-lazy") {
			p.LazyImages++
		}
	})

	if p.InlineCSSBytes > maxInlineCSSBytes {
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("Large inline CSS (%d KB)", p.InlineCSSBytes/1024), "style")
	}
	if p.RenderBlockingScripts > maxRenderBlockingScripts {
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("%d render-blocking scripts in <head>", p.RenderBlockingScripts), "head script")
	}
	if p.TotalImages > lazyLoadImageThreshold && p.LazyImages == 0 {
		a.AddIssue(model.SeverityInfo,
			fmt.Sprintf("No lazy-loaded images (%d images on page)", p.TotalImages), "img")
	}
}
