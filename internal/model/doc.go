// Package model defines the records that flow through an audit: crawl
// results, page analyses with their issues, performance reports, insights
// and the audit report that aggregates them.
//
// All types serialize to JSON with the field names consumed by the report
// writers and the audit database, so renaming a JSON tag is a format change.
package model
