// Package log builds the slog loggers used by siteaudit.
//
// Every logger is wrapped in a SecureHandler. Site configurations can carry
// cookies and authorization headers for staging or logged-in pages, and
// crawled URLs often contain signed query parameters, so values are masked
// before they reach any output:
//   - attributes whose key names a credential (cookie, authorization, token ...)
//   - header maps, entry by entry
//   - values that look like secrets (JWTs, bearer tokens, long opaque keys)
//   - URL passwords and sensitive query parameters, keeping the rest of the URL
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("page fetched", "url", "https://example.com/?token=abc") // token=***REDACTED***
//	slog.SetDefault(logger)
package log
