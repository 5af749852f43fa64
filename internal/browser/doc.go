// Package browser defines the rendering-engine capability used by the
// crawler and the performance auditor, and provides a headless Chrome
// implementation on top of chromedp.
//
// The interfaces mirror the lifecycle of a real browser: an Engine launches
// a Browser, a Browser opens isolated Contexts (separate cookies, cache and
// storage), and a Context hosts a Page that navigates and evaluates
// JavaScript. Every handle must be closed by its owner.
//
// Package browsertest provides an in-memory Engine for tests.
package browser
