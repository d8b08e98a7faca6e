// Package config loads mdsite.yaml (plus variant overlays and .env files)
// into the immutable BuildConfig consumed by the build pipeline.
package config

import (
	"path/filepath"
	"runtime"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "mdsite.yaml"

// RouteRule maps content paths matching a doublestar glob (relative to the
// content directory) to an output pattern. Patterns may use {dir}, {stem}
// and {slug}.
type RouteRule struct {
	Match  string `yaml:"match"`
	Output string `yaml:"output"`
}

// WatchConfig tunes the watch session.
type WatchConfig struct {
	Debounce            time.Duration `yaml:"debounce"`
	FullRebuildInterval time.Duration `yaml:"full_rebuild_interval"`
	MetricsAddr         string        `yaml:"metrics_addr"`
}

// NotifyConfig configures the optional build-completion publisher.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// RobotsRules is one group of allow and disallow path prefixes.
type RobotsRules struct {
	Allow    []string `yaml:"allow"`
	Disallow []string `yaml:"disallow"`
}

// RobotsAgentRules applies rules to one or more user agents.
type RobotsAgentRules struct {
	UserAgents  []string `yaml:"user_agents"`
	RobotsRules `yaml:",inline"`
	CrawlDelay  int `yaml:"crawl_delay"`
}

// RobotsConfig describes the generated robots.txt.
type RobotsConfig struct {
	// Enabled is the top-level generate_robots_txt key.
	Enabled    bool `yaml:"-"`
	CrawlDelay int  `yaml:"crawl_delay"`
	// Sitemap is written as the Sitemap line. When empty and sitemap output
	// is enabled, the generated sitemap's URL is used.
	Sitemap    string             `yaml:"sitemap"`
	Global     *RobotsRules       `yaml:"global_rules"`
	UserAgents []RobotsAgentRules `yaml:"user_agents"`
	// AutoIncludeGeneratedHTML allows every generated page for each agent.
	AutoIncludeGeneratedHTML bool `yaml:"auto_include_generated_html"`
	// AutoDisallowNonIncludedHTML disallows every generated page that no
	// allow rule covers.
	AutoDisallowNonIncludedHTML bool `yaml:"auto_disallow_non_included_html"`
}

// BuildConfig is the read-only context for one build or watch session.
// Paths are absolute after Load.
type BuildConfig struct {
	// ConfigPath is the loaded configuration file, empty for programmatic configs.
	ConfigPath string

	Root         string
	ContentDir   string
	TemplatesDir string
	AssetsDir    string
	OutputDir    string
	CacheDir     string

	BaseURL  string
	Variant  string
	Variants []string

	// Site holds the site-wide variables exposed to templates as site.*.
	Site *frontmatter.Map

	Routes        []RouteRule
	PrettyURLs    bool
	DefaultLayout string
	Workers       int
	HardWraps     bool
	Sitemap       bool
	CopyAssets    bool
	Robots        RobotsConfig

	Watch  WatchConfig
	Notify NotifyConfig
}

// New returns a BuildConfig rooted at root with every default applied.
// It is the programmatic counterpart of Load.
func New(root string) *BuildConfig {
	cfg := &BuildConfig{Root: root, PrettyURLs: true, CopyAssets: true}
	cfg.applyDefaults()
	return cfg
}

func (c *BuildConfig) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if abs, err := filepath.Abs(c.Root); err == nil {
		c.Root = abs
	}
	c.ContentDir = c.resolve(c.ContentDir, "content")
	c.TemplatesDir = c.resolve(c.TemplatesDir, "templates")
	c.AssetsDir = c.resolve(c.AssetsDir, "assets")
	c.OutputDir = c.resolve(c.OutputDir, "public")
	c.CacheDir = c.resolve(c.CacheDir, ".mdsite")
	if c.DefaultLayout == "" {
		c.DefaultLayout = "page"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Site == nil {
		c.Site = frontmatter.NewMap()
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 150 * time.Millisecond
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "mdsite.builds"
	}
}

func (c *BuildConfig) resolve(path, def string) string {
	if path == "" {
		path = def
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Root, path)
}

// Rel returns path relative to Root in slash form, the identity used for
// sources throughout the build.
func (c *BuildConfig) Rel(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Abs converts a Root-relative slash path back to an absolute path.
func (c *BuildConfig) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// ForVariant returns a copy of c bound to variant. Outputs of different
// variants go to separate subdirectories unless already distinguished.
func (c *BuildConfig) ForVariant(variant string) *BuildConfig {
	cp := *c
	cp.Variant = variant
	cp.Variants = nil
	cp.Site = c.Site.Clone()
	cp.Routes = append([]RouteRule(nil), c.Routes...)
	if variant != "" && c.Variant == "" {
		cp.OutputDir = filepath.Join(c.OutputDir, variant)
		cp.CacheDir = filepath.Join(c.CacheDir, variant)
	}
	return &cp
}
