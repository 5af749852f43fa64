package config

import "maps"

// SiteConfig holds site-specific configuration for a single host.
type SiteConfig struct {
	// Cookie is sent as the Cookie header on every page request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in page requests.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global depth budget for this site when non-zero.
	Depth int `yaml:"depth,omitempty"`

	// MaxPages overrides the global page budget for this site when non-zero.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// SkipPerformance disables the performance audit for this site.
	SkipPerformance bool `yaml:"skipPerformance,omitempty"`
}

// RequestHeaders returns the headers to add to page requests, with the
// cookie folded in.
func (sc SiteConfig) RequestHeaders() map[string]string {
	if len(sc.Headers) == 0 && sc.Cookie == "" {
		return nil
	}
	headers := maps.Clone(sc.Headers)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	if sc.Cookie != "" {
		headers["Cookie"] = sc.Cookie
	}
	return headers
}

// File represents the structure of the .siteaudit configuration file.
type File struct {
	// Sites maps hostnames (e.g. "example.com") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to all sites unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host, merging the
// site-specific entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if siteConfig.SkipPerformance {
		result.SkipPerformance = true
	}
	return result
}
