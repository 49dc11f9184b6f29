package config

import "time"

// SiteConfig holds host-specific request options.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// RetrySection is the retry block of the configuration file.
// MaxAttempts is a pointer because zero is a meaningful value (no retries).
type RetrySection struct {
	MaxAttempts *int          `yaml:"maxAttempts,omitempty"`
	BaseDelay   time.Duration `yaml:"baseDelay,omitempty"`
	MaxDelay    time.Duration `yaml:"maxDelay,omitempty"`
}

// File represents the structure of the .lexicrawl configuration file.
type File struct {
	BaseURL     string        `yaml:"baseURL,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	CrawlDelay  time.Duration `yaml:"crawlDelay,omitempty"`
	MaxPages    int           `yaml:"maxPages,omitempty"`
	UserAgent   string        `yaml:"userAgent,omitempty"`
	Proxy       string        `yaml:"proxy,omitempty"`
	ErrorLog    string        `yaml:"errorLog,omitempty"`
	OutputDir   string        `yaml:"outputDir,omitempty"`
	MaxBodySize int64         `yaml:"maxBodySize,omitempty"`

	Retry          RetrySection       `yaml:"retry,omitempty"`
	Classification ClassificationRule `yaml:"classification,omitempty"`
	Identifier     *IdentifierRule    `yaml:"identifier,omitempty"`

	// Sites maps host names to their site-specific configurations.
	// Keys are host names without scheme (e.g., "www.perseus.tufts.edu").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := SiteConfig{Cookie: cf.Defaults.Cookie}
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}

	return result
}

// Apply copies every value set in the file onto c.
// Fields left empty in the file keep their current value.
func (cf *File) Apply(c *Config) {
	if cf.BaseURL != "" {
		c.BaseURL = cf.BaseURL
	}
	if cf.Timeout > 0 {
		c.Timeout = cf.Timeout
	}
	if cf.CrawlDelay > 0 {
		c.CrawlDelay = cf.CrawlDelay
	}
	if cf.MaxPages > 0 {
		c.MaxPages = cf.MaxPages
	}
	if cf.UserAgent != "" {
		c.UserAgent = cf.UserAgent
	}
	if cf.Proxy != "" {
		c.ProxyURL = cf.Proxy
	}
	if cf.ErrorLog != "" {
		c.ErrorLogPath = cf.ErrorLog
	}
	if cf.OutputDir != "" {
		c.OutputDir = cf.OutputDir
	}
	if cf.MaxBodySize > 0 {
		c.MaxBodySize = cf.MaxBodySize
	}

	if cf.Retry.MaxAttempts != nil {
		c.MaxAttempts = *cf.Retry.MaxAttempts
	}
	if cf.Retry.BaseDelay > 0 {
		c.BaseDelay = cf.Retry.BaseDelay
	}
	if cf.Retry.MaxDelay > 0 {
		c.MaxDelay = cf.Retry.MaxDelay
	}

	if cf.Classification.PageClass != "" {
		c.Classification.PageClass = cf.Classification.PageClass
	}
	if cf.Classification.NextAlt != "" {
		c.Classification.NextAlt = cf.Classification.NextAlt
	}
	if cf.Classification.DetailClass != "" {
		c.Classification.DetailClass = cf.Classification.DetailClass
	}
	if cf.Classification.DetailMarker != "" {
		c.Classification.DetailMarker = cf.Classification.DetailMarker
	}

	// An explicit empty identifier block turns identification off.
	if cf.Identifier != nil {
		c.Identifier = *cf.Identifier
	}

	c.File = cf
}
