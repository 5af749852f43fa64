package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/siteaudit/internal/model"
)

// landmarkRoles are the ARIA roles reported as landmarks.
var landmarkRoles = map[string]bool{
	"banner":        true,
	"navigation":    true,
	"main":          true,
	"contentinfo":   true,
	"complementary": true,
	"search":        true,
	"form":          true,
	"region":        true,
}

// implicitLandmarks maps HTML5 sectioning elements to their landmark role.
var implicitLandmarks = map[string]string{
	"header": "banner",
	"nav":    "navigation",
	"main":   "main",
	"footer": "contentinfo",
	"aside":  "complementary",
}

// unlabeledInputTypes need no label.
var unlabeledInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
}

const skipLinkWindow = 5

func analyzeAccessibility(doc *goquery.Document, a *model.PageAnalysis) {
	sig := &a.Accessibility

	labelFor := make(map[string]bool)
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id := attr(s, "for"); id != "" {
			labelFor[id] = true
		}
	})

	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "input" && unlabeledInputTypes[strings.ToLower(attr(s, "type"))] {
			return
		}
		if isLabeled(s, labelFor) {
			sig.LabeledInputs++
		} else {
			sig.UnlabeledInputs++
		}
	})

	seen := make(map[string]bool)
	doc.Find("[role], header, nav, main, footer, aside").Each(func(_ int, s *goquery.Selection) {
		role := strings.ToLower(attr(s, "role"))
		if !landmarkRoles[role] {
			role = implicitLandmarks[goquery.NodeName(s)]
		}
		if role == "" || seen[role] {
			return
		}
		seen[role] = true
		sig.Landmarks = append(sig.Landmarks, role)
	})

	doc.Find("a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= skipLinkWindow {
			return false
		}
		href := attr(s, "href")
		text := strings.ToLower(s.Text())
		if strings.HasPrefix(href, "#") && (strings.Contains(text, "skip") || strings.Contains(text, "main content")) {
			sig.HasSkipLink = true
			return false
		}
		return true
	})

	doc.Find("[tabindex]").Each(func(_ int, s *goquery.Selection) {
		sig.TabindexCount++
		if n, err := strconv.Atoi(attr(s, "tabindex")); err == nil && n < 0 {
			sig.NegativeTabindex++
		}
	})

	if sig.UnlabeledInputs > 0 {
		a.AddIssue(model.SeverityWarning,
			fmt.Sprintf("%d form inputs without labels", sig.UnlabeledInputs), "input")
	}
	if !seen["main"] {
		a.AddIssue(model.SeverityInfo, "Missing main landmark", "main")
	}
}

func isLabeled(s *goquery.Selection, labelFor map[string]bool) bool {
	if id := attr(s, "id"); id != "" && labelFor[id] {
		return true
	}
	if s.ParentsFiltered("label").Length() > 0 {
		return true
	}
	return attr(s, "aria-label") != "" ||
		attr(s, "aria-labelledby") != "" ||
		attr(s, "title") != ""
}
