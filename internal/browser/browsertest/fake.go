// Package browsertest provides an in-memory browser.Engine for tests.
//
// Pages are scripted per URL through Engine.Handler; no process is started
// and no network traffic happens.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/siteaudit/internal/browser"
)

// Response scripts one navigation.
type Response struct {
	Status  int
	Headers map[string]string

	// HTML is returned by the first Content call. Reloads are returned by
	// the following calls in order, the last one repeating.
	HTML    string
	Reloads []string

	Title string

	// FinalURL is reported by Page.URL. Empty means the requested URL.
	FinalURL string

	// Err fails Goto.
	Err error

	// CommitOnly makes every wait beyond "commit" time out.
	CommitOnly bool

	// ContentErr fails Content.
	ContentErr error
}

// Engine is a scripted browser.Engine. Its zero value serves an empty 200
// page for every URL.
type Engine struct {
	// Handler returns the response for the attempt-th navigation to url,
	// counting from 1.
	Handler func(url string, attempt int) Response

	// EvaluateFunc answers Page.Evaluate. Its result is passed through JSON
	// into the caller's destination. Nil leaves the destination untouched.
	EvaluateFunc func(p *Page, expr string) (any, error)

	LaunchErr error

	mu            sync.Mutex
	visits        map[string]int
	order         []string
	launches      int
	browserCloses int
	contexts      []*Context
}

var _ browser.Engine = (*Engine)(nil)

// Launch implements browser.Engine.
func (e *Engine) Launch(_ context.Context, _ browser.LaunchOptions) (browser.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	e.launches++
	return &Browser{engine: e}, nil
}

// Visits returns how many times url was navigated to.
func (e *Engine) Visits(url string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visits[url]
}

// VisitOrder returns every navigated URL in order, repeats included.
func (e *Engine) VisitOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Launches returns the number of successful launches.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

// BrowserCloses returns the number of Browser.Close calls.
func (e *Engine) BrowserCloses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.browserCloses
}

// OpenContexts returns the number of contexts not yet closed.
func (e *Engine) OpenContexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.contexts {
		if !c.closed {
			n++
		}
	}
	return n
}

// ContextOptions returns the options of every context opened so far.
func (e *Engine) ContextOptions() []browser.ContextOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]browser.ContextOptions, 0, len(e.contexts))
	for _, c := range e.contexts {
		out = append(out, c.opts)
	}
	return out
}

func (e *Engine) navigate(url string) Response {
	e.mu.Lock()
	if e.visits == nil {
		e.visits = make(map[string]int)
	}
	e.visits[url]++
	attempt := e.visits[url]
	e.order = append(e.order, url)
	handler := e.Handler
	e.mu.Unlock()

	if handler == nil {
		return Response{Status: 200, HTML: "<html><head></head><body></body></html>"}
	}
	return handler(url, attempt)
}

// Browser is a fake browser.Browser.
type Browser struct {
	engine *Engine
	closed bool
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(_ context.Context, opts browser.ContextOptions) (browser.Context, error) {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.closed {
		return nil, browser.ErrClosed
	}
	c := &Context{engine: b.engine, opts: opts}
	b.engine.contexts = append(b.engine.contexts, c)
	return c, nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	b.engine.browserCloses++
	b.closed = true
	return nil
}

// Context is a fake browser.Context.
type Context struct {
	engine *Engine
	opts   browser.ContextOptions
	page   *Page
	closed bool
}

// NewPage implements browser.Context.
func (c *Context) NewPage(_ context.Context) (browser.Page, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if c.closed {
		return nil, browser.ErrClosed
	}
	if c.page != nil {
		return nil, browser.ErrPageOpen
	}
	c.page = &Page{engine: c.engine, Options: c.opts}
	return c.page, nil
}

// Close implements browser.Context.
func (c *Context) Close() error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.closed = true
	return nil
}

// Page is a fake browser.Page.
type Page struct {
	// Options are the options of the owning context.
	Options browser.ContextOptions

	engine       *Engine
	url          string
	resp         Response
	contentCalls int
	closed       bool
}

// CurrentURL returns the URL of the last navigation.
func (p *Page) CurrentURL() string {
	return p.url
}

// CurrentHTML returns the HTML most recently returned by Content.
func (p *Page) CurrentHTML() string {
	return p.htmlAt(max(p.contentCalls-1, 0))
}

func (p *Page) htmlAt(i int) string {
	if i == 0 || len(p.resp.Reloads) == 0 {
		return p.resp.HTML
	}
	if i > len(p.resp.Reloads) {
		i = len(p.resp.Reloads)
	}
	return p.resp.Reloads[i-1]
}

// Goto implements browser.Page.
func (p *Page) Goto(ctx context.Context, url string, opts browser.GotoOptions) (*browser.Response, error) {
	if p.closed {
		return nil, browser.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := p.engine.navigate(url)
	if resp.Err != nil {
		return nil, resp.Err
	}
	if resp.CommitOnly && opts.WaitUntil != browser.WaitCommit {
		return nil, fmt.Errorf("timeout %s exceeded waiting for %s: %w", opts.Timeout, opts.WaitUntil, context.DeadlineExceeded)
	}

	p.url = url
	p.resp = resp
	p.contentCalls = 0

	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[strings.ToLower(k)] = v
	}
	final := resp.FinalURL
	if final == "" {
		final = url
	}
	return &browser.Response{Status: resp.Status, Headers: headers, URL: final}, nil
}

// WaitForLoadState implements browser.Page.
func (p *Page) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	if p.closed {
		return browser.ErrClosed
	}
	if p.resp.CommitOnly && state != browser.WaitCommit {
		return fmt.Errorf("timeout %s exceeded waiting for %s: %w", timeout, state, context.DeadlineExceeded)
	}
	return ctx.Err()
}

// Content implements browser.Page.
func (p *Page) Content(_ context.Context) (string, error) {
	if p.closed {
		return "", browser.ErrClosed
	}
	if p.resp.ContentErr != nil {
		return "", p.resp.ContentErr
	}
	html := p.htmlAt(p.contentCalls)
	p.contentCalls++
	return html, nil
}

// Title implements browser.Page.
func (p *Page) Title(_ context.Context) (string, error) {
	if p.closed {
		return "", browser.ErrClosed
	}
	return p.resp.Title, nil
}

// URL implements browser.Page.
func (p *Page) URL(_ context.Context) (string, error) {
	if p.closed {
		return "", browser.ErrClosed
	}
	if p.resp.FinalURL != "" {
		return p.resp.FinalURL, nil
	}
	return p.url, nil
}

// Evaluate implements browser.Page.
func (p *Page) Evaluate(_ context.Context, expr string, res any) error {
	if p.closed {
		return browser.ErrClosed
	}
	if p.engine.EvaluateFunc == nil {
		return nil
	}
	v, err := p.engine.EvaluateFunc(p, expr)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode evaluate result: %w", err)
	}
	return json.Unmarshal(data, res)
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.closed = true
	return nil
}
