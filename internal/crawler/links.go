package crawler

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/analyzer"
	"github.com/nao1215/siteaudit/internal/browser"
	"github.com/nao1215/siteaudit/internal/urlnorm"
)

const collectHrefsScript = `Array.from(document.querySelectorAll('a[href]')).map((a) => a.getAttribute('href'))`

// extractLinks returns the normalized same-host links of the loaded page in
// document order. It asks the page first and falls back to the captured
// HTML when the page cannot answer.
func (c *Crawler) extractLinks(ctx context.Context, page browser.Page, html, pageURL, host string) []string {
	var hrefs []string
	if err := page.Evaluate(ctx, collectHrefsScript, &hrefs); err != nil || hrefs == nil {
		if err != nil {
			c.logger.Debug("link extraction in page failed, parsing html", "url", pageURL, "error", err)
		}
		hrefs = hrefsFromHTML(html)
	}
	return sameHostLinks(pageURL, host, hrefs)
}

func hrefsFromHTML(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc.Find("a[href]").Map(func(_ int, s *goquery.Selection) string {
		v, _ := s.Attr("href")
		return v
	})
}

func sameHostLinks(pageURL, host string, hrefs []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	out := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		if !analyzer.IsNavigableHref(href) {
			continue
		}
		link, err := urlnorm.Resolve(base, href)
		if err != nil || !urlnorm.SameHost(link, host) {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
