package model

// Issue is a single finding produced by the page analyzer.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Element  string   `json:"element,omitempty"`
}

// MetaTags holds the document-level tags relevant to search engines.
// Empty strings mean the tag is absent.
type MetaTags struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Keywords      string `json:"keywords"`
	Canonical     string `json:"canonical"`
	Robots        string `json:"robots"`
	OGTitle       string `json:"ogTitle"`
	OGDescription string `json:"ogDescription"`
	OGImage       string `json:"ogImage"`
	TwitterCard   string `json:"twitterCard"`
	Viewport      string `json:"viewport"`
}

// Headings is the heading inventory. Each text is capped at 200 characters.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// ImageStats summarizes alt-text coverage.
type ImageStats struct {
	Total   int `json:"total"`
	WithAlt int `json:"withAlt"`

	// WithoutAltCount is the exact number of images lacking alt text.
	WithoutAltCount int `json:"withoutAltCount"`

	// WithoutAlt lists the sources of images lacking alt text, at most 50.
	WithoutAlt []string `json:"withoutAlt"`
}

// LinkStats counts anchors by destination.
type LinkStats struct {
	Internal int `json:"internal"`
	External int `json:"external"`

	// Broken lists hrefs that could not be parsed, at most 20.
	Broken []string `json:"broken"`
}

// SchemaInfo lists the structured-data types found on the page.
// Microdata types carry a "microdata:" prefix.
type SchemaInfo struct {
	HasStructuredData bool     `json:"hasStructuredData"`
	Types             []string `json:"types"`
}

// PerformanceHints are static signals that predict slow rendering.
type PerformanceHints struct {
	InlineCSSBytes        int `json:"inlineCssBytes"`
	InlineJSBytes         int `json:"inlineJsBytes"`
	RenderBlockingScripts int `json:"renderBlockingScripts"`
	LazyImages            int `json:"lazyImages"`
	TotalImages           int `json:"totalImages"`
}

// AccessibilitySignals are the accessibility checks that need no rendering.
type AccessibilitySignals struct {
	LabeledInputs    int      `json:"labeledInputs"`
	UnlabeledInputs  int      `json:"unlabeledInputs"`
	Landmarks        []string `json:"landmarks"`
	HasSkipLink      bool     `json:"hasSkipLink"`
	TabindexCount    int      `json:"tabindexCount"`
	NegativeTabindex int      `json:"negativeTabindex"`
}

// PageAnalysis is the structured result of analyzing one page's HTML.
type PageAnalysis struct {
	Meta          MetaTags             `json:"meta"`
	Headings      Headings             `json:"headings"`
	Images        ImageStats           `json:"images"`
	Links         LinkStats            `json:"links"`
	Schema        SchemaInfo           `json:"schema"`
	Performance   PerformanceHints     `json:"performance"`
	Accessibility AccessibilitySignals `json:"accessibility"`
	Lang          string               `json:"lang"`
	HasViewport   bool                 `json:"hasViewport"`
	HasFavicon    bool                 `json:"hasFavicon"`
	Issues        []Issue              `json:"issues"`
}

// NewPageAnalysis returns an analysis with every list initialized, so that
// JSON output contains empty arrays instead of nulls.
func NewPageAnalysis() *PageAnalysis {
	return &PageAnalysis{
		Headings: Headings{
			H1: []string{},
			H2: []string{},
			H3: []string{},
		},
		Images:        ImageStats{WithoutAlt: []string{}},
		Links:         LinkStats{Broken: []string{}},
		Schema:        SchemaInfo{Types: []string{}},
		Accessibility: AccessibilitySignals{Landmarks: []string{}},
		Issues:        []Issue{},
	}
}

// AddIssue appends an issue to the analysis.
func (a *PageAnalysis) AddIssue(sev Severity, message, element string) {
	a.Issues = append(a.Issues, Issue{Severity: sev, Message: message, Element: element})
}

// CountIssues returns the number of issues with the given severity.
func (a *PageAnalysis) CountIssues(sev Severity) int {
	n := 0
	for _, issue := range a.Issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}
