package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

type fileConfig struct {
	ContentDir    string       `yaml:"content_dir"`
	TemplatesDir  string       `yaml:"templates_dir"`
	AssetsDir     string       `yaml:"assets_dir"`
	Output        string       `yaml:"output"`
	CacheDir      string       `yaml:"cache_dir"`
	BaseURL       string       `yaml:"base_url"`
	Variant       string       `yaml:"variant"`
	Variants      []string     `yaml:"variants"`
	Site          yaml.Node    `yaml:"site"`
	Routes        []RouteRule  `yaml:"routes"`
	PrettyURLs    *bool        `yaml:"pretty_urls"`
	DefaultLayout string       `yaml:"default_layout"`
	Workers       int          `yaml:"workers"`
	HardWraps     bool         `yaml:"hard_wraps"`
	Sitemap       bool         `yaml:"sitemap"`
	RobotsTxt     bool         `yaml:"generate_robots_txt"`
	Robots        RobotsConfig `yaml:"robots"`
	CopyAssets    *bool        `yaml:"copy_assets"`
	Watch         WatchConfig  `yaml:"watch"`
	Notify        NotifyConfig `yaml:"notify"`
}

// Load reads the configuration file at path, overlays `<name>.<variant>.yaml`
// when a variant is selected (by argument or the file's `variant` key) and
// returns a validated BuildConfig rooted at the file's directory.
//
// `.env` and `.env.local` next to the file are loaded first (without
// overriding the process environment) and `$VAR` references in the file are
// expanded.
func Load(path, variant string) (*BuildConfig, error) {
	if path == "" {
		path = DefaultFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve config path").Fatal().
			WithContext("path", path).Build()
	}
	dir := filepath.Dir(absPath)

	loadEnvFiles(dir)

	root, err := readNode(absPath)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := root.Decode(&fc); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode config").Fatal().
			WithContext("path", absPath).Build()
	}

	if variant == "" {
		variant = fc.Variant
	}
	if variant != "" {
		overlayPath := VariantPath(absPath, variant)
		overlay, err := readNode(overlayPath)
		switch {
		case err == nil:
			mergeNodes(root, overlay)
			fc = fileConfig{}
			if err := root.Decode(&fc); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode config").Fatal().
					WithContext("path", overlayPath).Build()
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	cfg, err := fc.toBuildConfig(dir)
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = absPath
	if variant != "" {
		cfg.Variant = variant
		cfg.Variants = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadVariants loads path once per variant listed under `variants:`, or
// once when none are listed. A variant whose overlay does not set its own
// output directory writes to `<output>/<variant>`, with a matching cache
// directory.
func LoadVariants(path string) ([]*BuildConfig, error) {
	base, err := Load(path, "")
	if err != nil {
		return nil, err
	}
	if len(base.Variants) == 0 {
		return []*BuildConfig{base}, nil
	}
	out := make([]*BuildConfig, 0, len(base.Variants))
	for _, v := range base.Variants {
		vc, err := Load(path, v)
		if err != nil {
			return nil, err
		}
		if vc.OutputDir == base.OutputDir {
			vc.OutputDir = filepath.Join(base.OutputDir, v)
		}
		if vc.CacheDir == base.CacheDir {
			vc.CacheDir = filepath.Join(base.CacheDir, v)
		}
		out = append(out, vc)
	}
	return out, nil
}

// VariantPath turns "site/mdsite.yaml" into "site/mdsite.<variant>.yaml".
func VariantPath(path, variant string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + variant + ext
}

func (fc *fileConfig) toBuildConfig(dir string) (*BuildConfig, error) {
	cfg := &BuildConfig{
		Root:          dir,
		ContentDir:    fc.ContentDir,
		TemplatesDir:  fc.TemplatesDir,
		AssetsDir:     fc.AssetsDir,
		OutputDir:     fc.Output,
		CacheDir:      fc.CacheDir,
		BaseURL:       fc.BaseURL,
		Variant:       fc.Variant,
		Variants:      fc.Variants,
		Routes:        fc.Routes,
		PrettyURLs:    true,
		DefaultLayout: fc.DefaultLayout,
		Workers:       fc.Workers,
		HardWraps:     fc.HardWraps,
		Sitemap:       fc.Sitemap,
		Robots:        fc.Robots,
		CopyAssets:    true,
		Watch:         fc.Watch,
		Notify:        fc.Notify,
	}
	if fc.PrettyURLs != nil {
		cfg.PrettyURLs = *fc.PrettyURLs
	}
	if fc.CopyAssets != nil {
		cfg.CopyAssets = *fc.CopyAssets
	}
	cfg.Robots.Enabled = fc.RobotsTxt

	if fc.Site.Kind != 0 {
		site, err := frontmatter.FromNode(&fc.Site)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode site variables").Fatal().Build()
		}
		switch site.Kind() {
		case frontmatter.KindMapping:
			cfg.Site, _ = site.AsMapping()
		case frontmatter.KindNull:
		default:
			return nil, ferrors.ConfigError("site must be a mapping").WithContext("kind", site.Kind().String()).Build()
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *BuildConfig) Validate() error {
	if c.Variant != "" && len(c.Variants) > 0 {
		return ferrors.ConfigError("variant and variants are mutually exclusive").Build()
	}
	for i, r := range c.Routes {
		if r.Match == "" || r.Output == "" {
			return ferrors.ConfigError("route requires match and output").WithContext("route", i).Build()
		}
		if !doublestar.ValidatePattern(r.Match) {
			return ferrors.ConfigError("invalid route pattern").WithContext("route", i).WithContext("match", r.Match).Build()
		}
		if strings.HasPrefix(r.Output, "/") || strings.Contains(r.Output, "..") {
			return ferrors.ConfigError("route output must stay inside the output directory").
				WithContext("route", i).WithContext("output", r.Output).Build()
		}
	}
	for i, r := range c.Robots.UserAgents {
		if len(r.UserAgents) == 0 {
			return ferrors.ConfigError("robots rule requires user_agents").WithContext("rule", i).Build()
		}
	}
	for _, pair := range [][2]string{{"content", c.ContentDir}, {"templates", c.TemplatesDir}} {
		if pair[1] == c.OutputDir {
			return ferrors.ConfigError("output directory must differ from source directories").
				WithContext("dir", pair[0]).Build()
		}
	}
	return nil
}

func readNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "configuration file not found").Fatal().
				WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryIO, "read config").Fatal().
			WithContext("path", path).Build()
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &node); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse config").Fatal().
			WithContext("path", path).Build()
	}
	if node.Kind == 0 {
		node = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	return &node, nil
}

// mergeNodes deep-merges overlay mappings into dst; non-mapping values replace.
func mergeNodes(dst, overlay *yaml.Node) {
	if dst.Kind == yaml.DocumentNode && overlay.Kind == yaml.DocumentNode {
		if len(dst.Content) == 0 {
			dst.Content = overlay.Content
			return
		}
		if len(overlay.Content) > 0 {
			mergeNodes(dst.Content[0], overlay.Content[0])
		}
		return
	}
	if dst.Kind != yaml.MappingNode || overlay.Kind != yaml.MappingNode {
		*dst = *overlay
		return
	}
	for i := 0; i+1 < len(overlay.Content); i += 2 {
		key, val := overlay.Content[i], overlay.Content[i+1]
		found := false
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value == key.Value {
				mergeNodes(dst.Content[j+1], val)
				found = true
				break
			}
		}
		if !found {
			dst.Content = append(dst.Content, key, val)
		}
	}
}

func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Could not load env file", "path", p, "error", err)
		}
	}
}
