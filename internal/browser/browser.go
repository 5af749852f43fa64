package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Load states accepted by GotoOptions.WaitUntil and Page.WaitForLoadState.
const (
	WaitCommit           = "commit"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitLoad             = "load"
	WaitNetworkIdle      = "networkidle"
)

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("browser: handle is closed")

	// ErrPageOpen is returned when a second page is requested from a Context.
	ErrPageOpen = errors.New("browser: context already has a page")

	// ErrUnknownLoadState is returned for an unsupported load state name.
	ErrUnknownLoadState = errors.New("browser: unknown load state")
)

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Headless bool

	// ExecPath is the browser binary. Empty means auto-detect.
	ExecPath string

	// ProxyServer is an optional SOCKS5 proxy as host:port.
	ProxyServer string
}

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	UserAgent      string
	Viewport       Viewport
	Locale         string
	AcceptLanguage string

	// Headers are sent with every request of the context.
	Headers map[string]string

	// NavigationHeaders are added only to document requests, where a real
	// browser sends Sec-Fetch-Dest: document and friends.
	NavigationHeaders map[string]string

	// InitScripts run in every document before any page script.
	InitScripts []string
}

// GotoOptions controls a navigation.
type GotoOptions struct {
	// WaitUntil is the load state Goto waits for. Empty means WaitLoad.
	WaitUntil string

	Timeout time.Duration
}

// Response is the main document response of a navigation.
type Response struct {
	Status int

	// Headers are keyed by lowercase header name.
	Headers map[string]string

	URL string
}

// Header returns the value of a header, matching the name case-insensitively.
func (r *Response) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// Engine launches browsers.
type Engine interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing session holding a single page.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a browser tab.
type Page interface {
	Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error)
	WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression and decodes its JSON-compatible
	// result into res, which must be a pointer or nil. Promises are awaited.
	Evaluate(ctx context.Context, expr string, res any) error

	Close() error
}
