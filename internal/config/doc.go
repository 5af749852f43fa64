// Package config provides configuration structures and utilities for siteaudit.
// It defines the crawl budgets, browser and proxy settings, report output
// preferences and the optional per-site YAML configuration file.
package config
