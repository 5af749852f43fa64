package model

// ErrorKind classifies why a page could not be crawled.
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindDNS               ErrorKind = "dns"
	ErrorKindSSL               ErrorKind = "ssl"
	ErrorKindConnectionRefused ErrorKind = "connection_refused"
	ErrorKindBlocked           ErrorKind = "blocked"
	ErrorKindAntiBot           ErrorKind = "anti_bot"
	ErrorKindHTTPError         ErrorKind = "http_error"
	ErrorKindParseError        ErrorKind = "parse_error"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind may succeed on another
// attempt. DNS, TLS and blocked failures are final.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindDNS, ErrorKindSSL, ErrorKindBlocked:
		return false
	default:
		return true
	}
}

// CrawlResult is the outcome of visiting one URL. It is created once per
// visited URL and is not modified after it has been appended to the crawl
// output.
type CrawlResult struct {
	// URL is the normalized URL that was requested.
	URL string `json:"url"`

	// FinalURL is set when the browser ended up on a different URL.
	FinalURL string `json:"finalUrl,omitempty"`

	// StatusCode is the HTTP status of the main document, or 0 when the
	// page could not be loaded at all.
	StatusCode int `json:"statusCode"`

	Title string `json:"title"`

	Analysis *PageAnalysis `json:"analysis,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorType ErrorKind `json:"errorType,omitempty"`

	// ResponseTimeMs is the wall time of the successful navigation.
	ResponseTimeMs *int64 `json:"responseTimeMs,omitempty"`
}

// NewFailedResult builds the terminal result for a URL that could not be
// fetched. The status code is always 0.
func NewFailedResult(url string, kind ErrorKind, message string) CrawlResult {
	return CrawlResult{
		URL:       url,
		Error:     message,
		ErrorType: kind,
	}
}

// IsSuccess reports whether the page loaded with a 2xx or 3xx status and
// no error was recorded.
func (r *CrawlResult) IsSuccess() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 400
}

// Redirected reports whether the browser finished on another URL.
func (r *CrawlResult) Redirected() bool {
	return r.FinalURL != "" && r.FinalURL != r.URL
}

// IssueCount returns the number of analyzer issues with the given severity.
func (r *CrawlResult) IssueCount(sev Severity) int {
	if r.Analysis == nil {
		return 0
	}
	return r.Analysis.CountIssues(sev)
}
