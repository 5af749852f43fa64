package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/siteaudit/internal/analyzer"
	"github.com/nao1215/siteaudit/internal/browser"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/urlnorm"
)

// errContentCapture marks a page whose HTML could not be read.
var errContentCapture = errors.New("failed to capture page content")

// pageOutcome is what one successful attempt produced.
type pageOutcome struct {
	result model.CrawlResult
	links  []string
}

// fetchWithRetry renders pageURL, retrying retryable failures with
// exponential backoff. It always returns a result.
func (c *Crawler) fetchWithRetry(ctx context.Context, b browser.Browser, pageURL, host string) (model.CrawlResult, []string) {
	var (
		lastErr  error
		lastKind model.ErrorKind
	)
	for attempt := range MaxRetries {
		out, err := c.fetchOnce(ctx, b, pageURL, host)
		if err == nil {
			return out.result, out.links
		}

		lastErr = err
		lastKind = ClassifyError(err)
		c.recorder.AttemptFailed(lastKind)
		c.logger.Debug("page attempt failed",
			"url", pageURL, "attempt", attempt+1, "kind", lastKind, "error", err)

		if !lastKind.Retryable() || attempt == MaxRetries-1 {
			break
		}
		wait := c.backoff(attempt)
		c.logger.Info("retrying page", "url", pageURL, "attempt", attempt+2, "backoff", wait)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr, lastKind = err, ClassifyError(err)
			break
		}
	}

	c.logger.Warn("page failed", "url", pageURL, "kind", lastKind, "error", lastErr)
	return model.NewFailedResult(pageURL, lastKind, lastErr.Error()), nil
}

// backoff returns 2^attempt seconds plus up to one second of jitter, where
// attempt is the zero-based index of the attempt that just failed.
func (c *Crawler) backoff(attempt int) time.Duration {
	jitter := time.Duration(c.rng.Int64N(int64(time.Second/time.Millisecond))) * time.Millisecond
	return time.Duration(1<<attempt)*time.Second + jitter
}

// fetchOnce performs one attempt in a fresh browsing context. A returned
// error means the attempt failed; challenge pages and HTTP errors are
// results, not errors.
func (c *Crawler) fetchOnce(ctx context.Context, b browser.Browser, pageURL, host string) (*pageOutcome, error) {
	bctx, err := b.NewContext(ctx, newIdentity(c.rng, c.headers))
	if err != nil {
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			c.logger.Debug("failed to close browser context", "url", pageURL, "error", err)
		}
	}()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.logger.Debug("failed to close page", "url", pageURL, "error", err)
		}
	}()

	start := time.Now()
	resp, err := c.navigate(ctx, page, pageURL)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Milliseconds()

	if err := page.WaitForLoadState(ctx, browser.WaitNetworkIdle, NetworkIdleTimeout); err != nil {
		c.logger.Debug("network did not go idle, using current DOM", "url", pageURL, "error", err)
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, withKind(model.ErrorKindParseError, fmt.Errorf("%w: %w", errContentCapture, err))
	}

	status, server := resp.Status, resp.Header("server")
	if isChallenge(status, server, html) {
		blocked, err := c.recheckChallenge(ctx, page, status, server)
		if err != nil {
			return nil, err
		}
		if blocked {
			c.logger.Warn("anti-bot challenge did not resolve", "url", pageURL, "status", status)
			return &pageOutcome{result: model.CrawlResult{
				URL:            pageURL,
				Error:          fmt.Sprintf("anti-bot challenge detected (HTTP %d)", status),
				ErrorType:      model.ErrorKindAntiBot,
				ResponseTimeMs: &elapsed,
			}}, nil
		}
		c.logger.Info("anti-bot challenge resolved", "url", pageURL)
	}

	if clicked := c.dismissConsent(ctx, page); clicked != "" {
		c.logger.Debug("dismissed consent banner", "url", pageURL, "via", clicked)
	}

	html, err = page.Content(ctx)
	if err != nil {
		return nil, withKind(model.ErrorKindParseError, fmt.Errorf("%w: %w", errContentCapture, err))
	}
	title, err := page.Title(ctx)
	if err != nil {
		c.logger.Debug("failed to read title", "url", pageURL, "error", err)
	}
	finalURL, err := page.URL(ctx)
	if err != nil || finalURL == "" {
		finalURL = pageURL
	}

	links := c.extractLinks(ctx, page, html, finalURL, host)

	result := model.CrawlResult{
		URL:            pageURL,
		StatusCode:     status,
		Title:          title,
		Analysis:       analyzer.Analyze(html, pageURL),
		ResponseTimeMs: &elapsed,
	}
	if n, err := urlnorm.Normalize(finalURL); err == nil && n != pageURL {
		result.FinalURL = finalURL
	}
	if status >= 400 {
		result.Error = fmt.Sprintf("HTTP %d", status)
		result.ErrorType = model.ErrorKindHTTPError
	}
	return &pageOutcome{result: result, links: links}, nil
}

// navigate loads pageURL waiting for DOMContentLoaded. When that times out
// the same attempt tries once more, waiting only for the response commit.
func (c *Crawler) navigate(ctx context.Context, page browser.Page, pageURL string) (*browser.Response, error) {
	resp, err := page.Goto(ctx, pageURL, browser.GotoOptions{
		WaitUntil: browser.WaitDOMContentLoaded,
		Timeout:   NavigationTimeout,
	})
	if err == nil {
		return resp, nil
	}
	if ClassifyError(err) != model.ErrorKindTimeout || ctx.Err() != nil {
		return nil, err
	}

	c.logger.Debug("domcontentloaded timed out, retrying with commit", "url", pageURL)
	return page.Goto(ctx, pageURL, browser.GotoOptions{
		WaitUntil: browser.WaitCommit,
		Timeout:   NavigationTimeout,
	})
}

// recheckChallenge waits and reads the page again. It reports whether the
// challenge is still showing by the same rules that detected it.
func (c *Crawler) recheckChallenge(ctx context.Context, page browser.Page, status int, server string) (bool, error) {
	if err := c.sleep(ctx, ChallengeRecheckDelay); err != nil {
		return false, err
	}
	html, err := page.Content(ctx)
	if err != nil {
		return false, withKind(model.ErrorKindParseError, fmt.Errorf("%w: %w", errContentCapture, err))
	}
	blocked := isChallenge(status, server, html)
	c.recorder.ChallengeDetected(!blocked)
	return blocked, nil
}
