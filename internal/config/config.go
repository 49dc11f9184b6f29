package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The retry values follow the backoff the lexicon scraper has always used:
// start at one second, double per attempt, never wait longer than 30 seconds.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "lexicrawl"

	// DefaultBaseURL is the digital library the lexicon pages are served from.
	DefaultBaseURL = "https://www.perseus.tufts.edu/hopper/"

	// DefaultTimeout bounds a single HTTP exchange, not the whole crawl.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of retries allowed after a 429 response.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the first exponential backoff step.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps every exponential backoff step.
	DefaultMaxDelay = 30 * time.Second

	// DefaultCrawlDelay is the politeness delay between requests.
	// Zero disables it; the 429 backoff still applies.
	DefaultCrawlDelay = 0

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxPages of 0 means the crawl runs until the frontier is empty.
	DefaultMaxPages = 0

	// DefaultErrorLogName is the file name of the append-only failure log.
	DefaultErrorLogName = "error.log"
)

// Default link classification and entry identifier values.
const (
	DefaultPageClass       = "arrow"
	DefaultNextAlt         = "next"
	DefaultDetailClass     = "xml"
	DefaultDetailMarker    = "xmlchunk"
	DefaultEntryElement    = "entryFree"
	DefaultEntryAttribute  = "key"
	DefaultEntryFileSuffix = ".xml"
)

// ClassificationRule describes how anchors on a listing page are sorted into
// "next page" links and "detail" links.
type ClassificationRule struct {
	// PageClass is the class an anchor must carry to be a page link.
	PageClass string `yaml:"pageClass,omitempty"`

	// NextAlt is the alt text of the child image that marks the "next" anchor.
	NextAlt string `yaml:"nextAlt,omitempty"`

	// DetailClass is the class an anchor must carry to be a detail link.
	DetailClass string `yaml:"detailClass,omitempty"`

	// DetailMarker must appear in a detail link's href.
	DetailMarker string `yaml:"detailMarker,omitempty"`
}

// DefaultClassificationRule returns the rule matching the lexicon listing pages.
func DefaultClassificationRule() ClassificationRule {
	return ClassificationRule{
		PageClass:    DefaultPageClass,
		NextAlt:      DefaultNextAlt,
		DetailClass:  DefaultDetailClass,
		DetailMarker: DefaultDetailMarker,
	}
}

// Validate reports an incomplete rule.
func (r ClassificationRule) Validate() error {
	if r.PageClass == "" || r.NextAlt == "" || r.DetailClass == "" || r.DetailMarker == "" {
		return NewError("classification", ErrIncompleteRule)
	}
	return nil
}

// IdentifierRule names the element and attribute that identify a detail payload.
// An empty Element disables identification.
type IdentifierRule struct {
	Element   string `yaml:"element,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
}

// Enabled reports whether detail payloads should be checked for an identifier.
func (r IdentifierRule) Enabled() bool {
	return r.Element != "" && r.Attribute != ""
}

// Config holds all configuration options for lexicrawl.
// It is populated from defaults, then the configuration file, then CLI flags,
// and is passed down explicitly rather than kept in global state.
type Config struct {
	// BaseURL is the URL relative links and a relative seed are resolved against.
	BaseURL string

	// Seed is the first listing page. It may be absolute or relative to BaseURL.
	Seed string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxAttempts is the number of retries allowed after 429 responses.
	MaxAttempts int

	// BaseDelay is the first step of the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps each exponential backoff step.
	MaxDelay time.Duration

	// CrawlDelay is the minimum spacing between two requests.
	CrawlDelay time.Duration

	// MaxPages stops the crawl after this many listing pages. 0 = unlimited.
	MaxPages int

	// UserAgent overrides the Go default User-Agent when set.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// ProxyURL routes requests through a proxy (socks5://, http://, https://).
	ProxyURL string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// File holds the loaded configuration file (site cookies and headers).
	File *File

	// Classification is the page/detail link rule.
	Classification ClassificationRule

	// Identifier names the attribute every detail payload must carry.
	Identifier IdentifierRule

	// ErrorLogPath is the append-only failure log. Empty disables the file sink.
	ErrorLogPath string

	// OutputDir receives one file per entry, named after its identifier.
	// Empty disables entry export.
	OutputDir string

	// SkipUnchanged leaves out entries whose hash matches the previous run
	// of the same seed. It needs the run database.
	SkipUnchanged bool

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory holding the SQLite run history.
	DBDir string

	// SaveToDB stores every run in the database when true.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        DefaultTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		CrawlDelay:     DefaultCrawlDelay,
		MaxPages:       DefaultMaxPages,
		MaxBodySize:    DefaultMaxBodySize,
		Classification: DefaultClassificationRule(),
		Identifier: IdentifierRule{
			Element:   DefaultEntryElement,
			Attribute: DefaultEntryAttribute,
		},
		ErrorLogPath: filepath.Join(XDGDataDir(), DefaultErrorLogName),
		DBDir:        XDGDataDir(),
		SaveToDB:     true,
	}
}

// XDGDataDir returns the XDG data directory for lexicrawl.
// On Linux: ~/.local/share/lexicrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for lexicrawl.
// On Linux: ~/.config/lexicrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a *Error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Seed) == "" {
		return NewError("seed", ErrNoSeed)
	}

	if c.BaseURL != "" {
		if _, err := ParseAbsoluteURL(c.BaseURL); err != nil {
			return NewError("base-url", ErrInvalidBaseURL)
		}
	}

	if _, err := ResolveURL(c.BaseURL, c.Seed); err != nil {
		return NewError("seed", ErrInvalidSeed)
	}

	if c.Timeout <= 0 {
		return NewError("timeout", ErrInvalidTimeout)
	}

	if c.MaxAttempts < 0 {
		return NewError("max-attempts", ErrInvalidMaxAttempts)
	}

	if c.BaseDelay <= 0 {
		return NewError("base-delay", ErrInvalidBaseDelay)
	}

	if c.MaxDelay <= 0 {
		return NewError("max-delay", ErrInvalidMaxDelay)
	}

	if c.JSONReport && c.MarkdownReport {
		return NewError("report", ErrConflictingReportFormats)
	}

	if c.CrawlDelay < 0 {
		return NewError("delay", ErrInvalidCrawlDelay)
	}

	if c.MaxBodySize < 0 {
		return NewError("max-body-size", ErrInvalidMaxBodySize)
	}

	if c.MaxPages < 0 {
		return NewError("max-pages", ErrInvalidMaxPages)
	}

	if c.ProxyURL != "" && !IsSupportedProxy(c.ProxyURL) {
		return NewError("proxy", ErrInvalidProxy)
	}

	return c.Classification.Validate()
}

// ParseAbsoluteURL parses raw and requires an http or https scheme and a host.
func ParseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidBaseURL
	}
	return u, nil
}

// ResolveURL resolves raw against base. An empty base requires raw to be absolute.
// The result is always an absolute http or https URL.
func ResolveURL(base, raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	if base != "" && !ref.IsAbs() {
		b, err := ParseAbsoluteURL(base)
		if err != nil {
			return nil, err
		}
		ref = b.ResolveReference(ref)
	}

	if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
		return nil, ErrInvalidSeed
	}
	return ref, nil
}

// IsSupportedProxy reports whether raw is a proxy URL lexicrawl can use.
func IsSupportedProxy(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Port() == "" {
		return false
	}
	switch u.Scheme {
	case "socks5", "socks5h", "http", "https":
		return true
	default:
		return false
	}
}
