// Package sitemap discovers page URLs from a site's XML sitemaps.
//
// The Resolver tries the locations announced in robots.txt first and falls
// back to a fixed list of well-known paths. It follows sitemap indexes up
// to MaxDepth levels, transparently expands gzip payloads and stops once
// MaxURLs locations have been collected. Resolution is best effort: fetch
// and parse failures are logged and skipped.
package sitemap
