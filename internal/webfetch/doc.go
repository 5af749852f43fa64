// Package webfetch performs the plain HTTP requests of an audit: robots.txt
// and sitemap downloads. Page rendering goes through the browser package
// instead.
//
// Bodies are read up to a caller-supplied cap and truncated rather than
// rejected. Content-Encoding gzip, br and deflate are decoded here because
// the client advertises them explicitly, which turns off the transport's
// transparent gzip handling.
package webfetch
