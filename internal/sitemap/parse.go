package sitemap

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Kind distinguishes a sitemap index from a page sitemap.
type Kind int

const (
	// KindURLSet is a sitemap listing pages.
	KindURLSet Kind = iota
	// KindIndex is a sitemap listing other sitemaps.
	KindIndex
)

// Document is the parsed content of one sitemap file.
type Document struct {
	Kind Kind
	Locs []string
}

var (
	locPattern     = regexp.MustCompile(`(?is)<(?:[\w-]+:)?loc\b[^>]*>(.*?)</(?:[\w-]+:)?loc>`)
	indexPattern   = regexp.MustCompile(`(?i)<(?:[\w-]+:)?(?:sitemapindex|sitemap)[\s>]`)
	cdataPattern   = regexp.MustCompile(`(?s)^<!\[CDATA\[(.*?)\]\]>$`)
	nestedSitemaps = regexp.MustCompile(`(?i)/sitemap[^/]*\.xml(?:\.gz)?$`)
)

// Parse reads a sitemap document. Well-formed XML goes through xmlquery;
// anything it rejects, such as a file cut at the size cap, is scanned with
// regular expressions instead.
func Parse(data []byte) Document {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil || doc == nil {
		return parseLoose(data)
	}

	out := Document{Kind: KindURLSet}
	if xmlquery.FindOne(doc, "//*[local-name()='sitemapindex']") != nil ||
		xmlquery.FindOne(doc, "//*[local-name()='sitemap']") != nil {
		out.Kind = KindIndex
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		if loc := cleanLoc(n.InnerText()); loc != "" {
			out.Locs = append(out.Locs, loc)
		}
	}
	return out
}

func parseLoose(data []byte) Document {
	out := Document{Kind: KindURLSet}
	if indexPattern.Match(data) {
		out.Kind = KindIndex
	}
	for _, m := range locPattern.FindAllSubmatch(data, -1) {
		if loc := cleanLoc(string(m[1])); loc != "" {
			out.Locs = append(out.Locs, loc)
		}
	}
	return out
}

func cleanLoc(s string) string {
	s = strings.TrimSpace(s)
	if m := cdataPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(html.UnescapeString(s))
}

// looksLikeSitemap reports whether a page entry points at another sitemap
// file rather than at a page.
func looksLikeSitemap(loc string) bool {
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return nestedSitemaps.MatchString(loc)
}
