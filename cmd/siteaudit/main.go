// Package main provides the entry point for the siteaudit CLI.
//
// siteaudit renders the pages of a website in a headless browser, checks
// them for technical SEO problems and reports a health score together with
// the most frequent issues.
//
// Usage:
//
//	siteaudit audit https://example.com
//	siteaudit history https://example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
