// Package database stores finished audits in a local SQLite file.
//
// Every audit is kept as its full JSON report next to a few summary
// columns (site, status, score, issue counts, timestamps) so history
// listings never have to decode whole reports. The store is a single file
// under the XDG data directory, opened through the CGO-free
// modernc.org/sqlite driver.
package database
