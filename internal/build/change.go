package build

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/content"
	"git.home.luguber.info/inful/mdsite/internal/templates"
)

// ChangeKind is the settled kind of a filesystem change.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one settled change. Path is project-relative and slash separated.
type Change struct {
	Path string
	Kind ChangeKind
}

// sourceClass tells which part of the project a path belongs to.
type sourceClass int

const (
	classIgnored sourceClass = iota
	classContent
	classTemplate
	classAsset
	classConfig
)

// classify maps a project-relative path to its class and the path relative
// to that class's root.
func classify(cfg *config.BuildConfig, rel string) (sourceClass, string) {
	if cfg.ConfigPath != "" && isConfigPath(cfg, rel) {
		return classConfig, rel
	}
	if inner, ok := under(rel, cfg.Rel(cfg.ContentDir)); ok {
		if content.IsContentFile(inner) {
			return classContent, inner
		}
		return classIgnored, rel
	}
	if inner, ok := under(rel, cfg.Rel(cfg.TemplatesDir)); ok {
		if path.Ext(inner) == templates.Ext {
			return classTemplate, strings.TrimSuffix(inner, templates.Ext)
		}
		return classIgnored, rel
	}
	if inner, ok := under(rel, cfg.Rel(cfg.AssetsDir)); ok {
		return classAsset, inner
	}
	return classIgnored, rel
}

// isConfigPath matches the config file, its variant overlays and the .env
// files loaded next to it.
func isConfigPath(cfg *config.BuildConfig, rel string) bool {
	cfgRel := cfg.Rel(cfg.ConfigPath)
	if rel == cfgRel {
		return true
	}
	if path.Dir(rel) != path.Dir(cfgRel) {
		return false
	}
	base := path.Base(rel)
	if base == ".env" || base == ".env.local" {
		return true
	}
	ext := path.Ext(cfgRel)
	stem := strings.TrimSuffix(path.Base(cfgRel), ext)
	return strings.HasPrefix(base, stem+".") && path.Ext(base) == ext
}

func under(rel, root string) (string, bool) {
	if root == "." || root == "" {
		return rel, true
	}
	prefix := root + "/"
	if !strings.HasPrefix(rel, prefix) {
		return "", false
	}
	return strings.TrimPrefix(rel, prefix), true
}

// Relevant reports whether a change to the project-relative path rel can
// affect the build.
func Relevant(cfg *config.BuildConfig, rel string) bool {
	class, _ := classify(cfg, rel)
	return class != classIgnored
}

// ConfigChanged reports whether any change touches the configuration file,
// a variant overlay or a .env file.
func ConfigChanged(cfg *config.BuildConfig, changes []Change) bool {
	for _, ch := range changes {
		if class, _ := classify(cfg, ch.Path); class == classConfig {
			return true
		}
	}
	return false
}
