package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

const microdataPrefix = "microdata:"

func analyzeSchema(doc *goquery.Document, a *model.PageAnalysis) {
	seen := make(map[string]struct{})
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		a.Schema.Types = append(a.Schema.Types, t)
	}

	doc.Find("script[type]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(attr(s, "type"), "application/ld+json") {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		collectJSONLDTypes(v, add)
	})

	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		for _, t := range strings.Fields(attr(s, "itemtype")) {
			add(microdataPrefix + microdataName(t))
		}
	})

	a.Schema.HasStructuredData = len(a.Schema.Types) > 0
}

// collectJSONLDTypes walks a decoded JSON-LD value and reports every @type,
// descending into arrays and @graph.
func collectJSONLDTypes(v any, add func(string)) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			collectJSONLDTypes(item, add)
		}
	case map[string]any:
		switch t := node["@type"].(type) {
		case string:
			add(t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
		if graph, ok := node["@graph"]; ok {
			collectJSONLDTypes(graph, add)
		}
	}
}

// microdataName reduces "https://schema.org/Product" to "Product".
func microdataName(itemtype string) string {
	itemtype = strings.TrimRight(itemtype, "/")
	if i := strings.LastIndexByte(itemtype, '/'); i >= 0 && i < len(itemtype)-1 {
		return itemtype[i+1:]
	}
	return itemtype
}
