package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	// networkIdleWindow is how long the network must stay quiet to count as idle.
	networkIdleWindow = 500 * time.Millisecond

	idlePollInterval = 100 * time.Millisecond
)

// ChromeEngine launches headless Chrome through chromedp.
type ChromeEngine struct {
	logger *slog.Logger
}

// NewChromeEngine creates a ChromeEngine. A nil logger means slog.Default().
func NewChromeEngine(logger *slog.Logger) *ChromeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeEngine{logger: logger}
}

// Launch starts a browser process.
func (e *ChromeEngine) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer("socks5://"+opts.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(e.debugf),
		chromedp.WithErrorf(e.errorf),
	)

	// Running with no actions starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	e.logger.Debug("browser launched", "headless", opts.Headless, "proxy", opts.ProxyServer != "")
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      e.logger,
	}, nil
}

func (e *ChromeEngine) debugf(format string, args ...any) {
	e.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
}

func (e *ChromeEngine) errorf(format string, args ...any) {
	e.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp", "level", "error")
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (b *chromeBrowser) NewContext(_ context.Context, opts ContextOptions) (Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	return &chromeContext{ctx: tabCtx, cancel: cancel, opts: opts, logger: b.logger}, nil
}

func (b *chromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type chromeContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   ContextOptions
	logger *slog.Logger

	mu     sync.Mutex
	page   *chromePage
	closed bool
}

func (c *chromeContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, ErrClosed
	case c.page != nil:
		return nil, ErrPageOpen
	}

	p := newChromePage(c.ctx, c.documentHeaders(), c.logger)
	chromedp.ListenTarget(c.ctx, p.onEvent)

	// The first Run attaches the tab, and the tab's event loop lives as long
	// as the context of that Run. It must be the tab context itself; the
	// caller's context can only abort the setup by closing the tab.
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	if err := chromedp.Run(c.ctx, c.setupActions()...); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	c.page = p
	return p, nil
}

// setupActions applies the context options to the tab. They run before the
// first navigation, so they cover every document the page loads.
func (c *chromeContext) setupActions() []chromedp.Action {
	o := c.opts
	actions := []chromedp.Action{network.Enable()}

	if o.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(o.UserAgent)
		if o.AcceptLanguage != "" {
			ua = ua.WithAcceptLanguage(o.AcceptLanguage)
		}
		actions = append(actions, ua)
	}
	if o.Viewport.Width > 0 && o.Viewport.Height > 0 {
		actions = append(actions,
			emulation.SetDeviceMetricsOverride(int64(o.Viewport.Width), int64(o.Viewport.Height), 1, false))
	}
	if o.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(o.Locale))
	}
	if len(o.Headers) > 0 {
		headers := make(network.Headers, len(o.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if len(o.NavigationHeaders) > 0 {
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeDocument,
			RequestStage: fetch.RequestStageRequest,
		}}))
	}
	for _, src := range o.InitScripts {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
			return err
		}))
	}
	return actions
}

// documentHeaders are the headers forced onto paused document requests:
// the context headers with the navigation headers on top. Nil when there are
// no navigation headers, in which case no request is paused.
func (c *chromeContext) documentHeaders() map[string]string {
	if len(c.opts.NavigationHeaders) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.opts.Headers)+len(c.opts.NavigationHeaders))
	for k, v := range c.opts.Headers {
		headers[k] = v
	}
	for k, v := range c.opts.NavigationHeaders {
		headers[k] = v
	}
	return headers
}

func (c *chromeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.page != nil {
		c.page.markClosed()
	}

	err := chromedp.Cancel(c.ctx)
	c.cancel()
	if err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

// chromePage tracks the main document response and network activity of a
// tab from CDP events.
type chromePage struct {
	ctx        context.Context
	docHeaders map[string]string
	logger     *slog.Logger

	mu           sync.Mutex
	closed       bool
	response     *Response
	domReady     chan struct{}
	loaded       chan struct{}
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newChromePage(ctx context.Context, docHeaders map[string]string, logger *slog.Logger) *chromePage {
	return &chromePage{
		ctx:          ctx,
		docHeaders:   docHeaders,
		logger:       logger,
		domReady:     make(chan struct{}),
		loaded:       make(chan struct{}),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (p *chromePage) onEvent(ev any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.inflight[e.RequestID] = struct{}{}
		p.lastActivity = time.Now()
	case *network.EventLoadingFinished:
		delete(p.inflight, e.RequestID)
		p.lastActivity = time.Now()
	case *network.EventLoadingFailed:
		delete(p.inflight, e.RequestID)
		p.lastActivity = time.Now()
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || p.response != nil || e.Response == nil {
			return
		}
		headers := make(map[string]string, len(e.Response.Headers))
		for k, v := range e.Response.Headers {
			headers[strings.ToLower(k)] = fmt.Sprint(v)
		}
		p.response = &Response{Status: int(e.Response.Status), Headers: headers, URL: e.Response.URL}
	case *page.EventDomContentEventFired:
		closeOnce(p.domReady)
	case *page.EventLoadEventFired:
		closeOnce(p.loaded)
	case *fetch.EventRequestPaused:
		// Listeners must not block the event loop.
		go p.continueDocument(e)
	}
}

// continueDocument resumes a paused document request with docHeaders merged
// over the headers Chrome chose.
func (p *chromePage) continueDocument(ev *fetch.EventRequestPaused) {
	ctx := cdp.WithExecutor(p.ctx, chromedp.FromContext(p.ctx).Target)

	entries := make([]*fetch.HeaderEntry, 0, len(ev.Request.Headers)+len(p.docHeaders))
	forced := make(map[string]bool, len(p.docHeaders))
	for k, v := range p.docHeaders {
		forced[strings.ToLower(k)] = true
		entries = append(entries, &fetch.HeaderEntry{Name: k, Value: v})
	}
	for k, v := range ev.Request.Headers {
		if !forced[strings.ToLower(k)] {
			entries = append(entries, &fetch.HeaderEntry{Name: k, Value: fmt.Sprint(v)})
		}
	}

	err := fetch.ContinueRequest(ev.RequestID).WithHeaders(entries).Do(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	p.logger.Debug("failed to override document headers", "url", ev.Request.URL, "error", err)
	if err := fetch.ContinueRequest(ev.RequestID).Do(ctx); err != nil && ctx.Err() == nil {
		p.logger.Debug("failed to continue document request", "url", ev.Request.URL, "error", err)
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (p *chromePage) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *chromePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *chromePage) Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	waitUntil := opts.WaitUntil
	if waitUntil == "" {
		waitUntil = WaitLoad
	}

	p.mu.Lock()
	p.response = nil
	p.domReady = make(chan struct{})
	p.loaded = make(chan struct{})
	domReady, loaded := p.domReady, p.loaded
	p.mu.Unlock()

	runCtx, cancel := callContext(ctx, p.ctx, opts.Timeout)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigation to %s failed: %s", url, res.ErrorText)
		}
		return nil
	}))
	if err != nil {
		return nil, timeoutError(runCtx, err, waitUntil, opts.Timeout)
	}

	var wait <-chan struct{}
	switch waitUntil {
	case WaitCommit:
	case WaitDOMContentLoaded:
		wait = domReady
	case WaitLoad:
		wait = loaded
	case WaitNetworkIdle:
		if err := p.waitIdle(runCtx); err != nil {
			return nil, timeoutError(runCtx, err, waitUntil, opts.Timeout)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoadState, waitUntil)
	}
	if wait != nil {
		select {
		case <-wait:
		case <-runCtx.Done():
			return nil, timeoutError(runCtx, runCtx.Err(), waitUntil, opts.Timeout)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.response == nil {
		return &Response{Headers: map[string]string{}, URL: url}, nil
	}
	resp := *p.response
	return &resp, nil
}

func (p *chromePage) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	if p.isClosed() {
		return ErrClosed
	}
	runCtx, cancel := callContext(ctx, p.ctx, timeout)
	defer cancel()

	p.mu.Lock()
	domReady, loaded := p.domReady, p.loaded
	p.mu.Unlock()

	var wait <-chan struct{}
	switch state {
	case WaitCommit:
		return nil
	case WaitDOMContentLoaded:
		wait = domReady
	case WaitLoad:
		wait = loaded
	case WaitNetworkIdle:
		if err := p.waitIdle(runCtx); err != nil {
			return timeoutError(runCtx, err, state, timeout)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLoadState, state)
	}
	select {
	case <-wait:
		return nil
	case <-runCtx.Done():
		return timeoutError(runCtx, runCtx.Err(), state, timeout)
	}
}

// waitIdle blocks until no request has been in flight for networkIdleWindow.
func (p *chromePage) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		idle := len(p.inflight) == 0 && time.Since(p.lastActivity) >= networkIdleWindow
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.Evaluate(ctx, `(document.doctype ? new XMLSerializer().serializeToString(document.doctype) : "") +
		(document.documentElement ? document.documentElement.outerHTML : "")`, &html); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.Evaluate(ctx, `document.title`, &title); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", ErrClosed
	}
	runCtx, cancel := callContext(ctx, p.ctx, 0)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read page url: %w", err)
	}
	return loc, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, res any) error {
	if p.isClosed() {
		return ErrClosed
	}
	runCtx, cancel := callContext(ctx, p.ctx, 0)
	defer cancel()

	if res == nil {
		var discard []byte
		res = &discard
	}
	awaitPromise := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, res, awaitPromise))
}

// Close marks the page unusable. The tab itself is released with its Context.
func (p *chromePage) Close() error {
	p.markClosed()
	return nil
}

// callContext derives a context for one chromedp call. It must descend from
// the tab context for chromedp to find its target, and it is also cancelled
// when the caller's context ends.
func callContext(caller, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(tab, timeout)
	} else {
		ctx, cancel = context.WithCancel(tab)
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// timeoutError rewrites a deadline expiry into a message naming the load
// state, keeping context.DeadlineExceeded in the chain.
func timeoutError(ctx context.Context, err error, state string, timeout time.Duration) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timeout %s exceeded waiting for %s: %w", timeout, state, context.DeadlineExceeded)
	}
	return err
}
