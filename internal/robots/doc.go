// Package robots fetches and evaluates robots.txt for a single site.
//
// # Rules
//
// Only the groups addressed to "*" or to an agent token containing "bot",
// "crawler" or "spider" are captured. Sitemap lines are collected no matter
// which group they appear in.
//
// # Matching
//
// IsAllowed applies the longest-match rule: of all Allow and Disallow
// patterns that match the URL path, the longest one decides. On equal
// length Allow wins. Patterns support the "*" wildcard and a trailing "$"
// anchor.
//
// # Failure handling
//
// FetchRules never fails. A missing, unreachable or non-text robots.txt
// yields an empty rule set that allows everything.
package robots
