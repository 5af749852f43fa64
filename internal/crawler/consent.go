package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/siteaudit/internal/browser"
)

// consentSelectors target the accept buttons of common consent managers.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"#CybotCookiebotDialogBodyButtonAccept",
	"#didomi-notice-agree-button",
	"#truste-consent-button",
	"#uc-btn-accept-banner",
	".osano-cm-accept-all",
	".qc-cmp2-summary-buttons button[mode='primary']",
	"button[data-cookiebanner='accept_button']",
	"[data-testid='cookie-accept']",
	"[aria-label='Accept cookies']",
	"#accept-cookies",
	"#cookie-accept",
	"#gdpr-cookie-accept",
	"#cookieConsentAccept",
	".cookie-consent-accept",
	".js-accept-cookies",
	".cc-allow",
	".cc-accept",
	".cc-btn.cc-dismiss",
}

// consentPhrases match the start of a dismiss button's text.
var consentPhrases = []string{
	"accept",
	"agree",
	"i agree",
	"i accept",
	"ok",
	"got it",
	"allow all",
	"allow cookies",
	"close",
	"dismiss",
	"i understand",
	"understood",
}

const (
	clickableSelector = `button, a, [role="button"], input[type="button"], input[type="submit"]`
	maxClickables     = 20
)

// visibleJS is a function expression reporting whether an element is rendered.
const visibleJS = `(el) => {
  const r = el.getBoundingClientRect();
  const s = window.getComputedStyle(el);
  return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
}`

// clickable is one entry of the fallback scan.
type clickable struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func clickSelectorScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const visible = %s;
  const el = document.querySelector(%s);
  if (!el || !visible(el)) return false;
  el.click();
  return true;
})()`, visibleJS, jsString(selector))
}

func listClickablesScript() string {
	return fmt.Sprintf(`(() => {
  const visible = %s;
  return Array.from(document.querySelectorAll(%s)).slice(0, %d).map((el) => ({
    text: (el.innerText || el.value || '').trim(),
    visible: visible(el),
  }));
})()`, visibleJS, jsString(clickableSelector), maxClickables)
}

func clickIndexScript(i int) string {
	return fmt.Sprintf(`(() => {
  const el = Array.from(document.querySelectorAll(%s)).slice(0, %d)[%d];
  if (!el) return false;
  el.click();
  return true;
})()`, jsString(clickableSelector), maxClickables, i)
}

// matchesConsentPhrase reports whether button text starts with a dismiss
// phrase, ignoring case.
func matchesConsentPhrase(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, p := range consentPhrases {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// dismissConsent clicks away a cookie banner if one is showing. It never
// fails; the returned description is empty when nothing was clicked.
func (c *Crawler) dismissConsent(ctx context.Context, page browser.Page) string {
	for _, sel := range consentSelectors {
		var clicked bool
		if err := page.Evaluate(ctx, clickSelectorScript(sel), &clicked); err != nil {
			c.logger.Debug("consent selector probe failed", "selector", sel, "error", err)
			continue
		}
		if clicked {
			return sel
		}
	}

	var items []clickable
	if err := page.Evaluate(ctx, listClickablesScript(), &items); err != nil {
		c.logger.Debug("consent text scan failed", "error", err)
		return ""
	}
	for i, item := range items {
		if !item.Visible || !matchesConsentPhrase(item.Text) {
			continue
		}
		var clicked bool
		if err := page.Evaluate(ctx, clickIndexScript(i), &clicked); err != nil {
			c.logger.Debug("consent click failed", "text", item.Text, "error", err)
			return ""
		}
		if clicked {
			return "text:" + item.Text
		}
	}
	return ""
}
