package build

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/content"
)

// RobotsFile is the output path of the generated robots.txt.
const RobotsFile = "robots.txt"

// renderRobots writes rc as a robots.txt. pages are the site paths
// ("/posts/a/index.html") of the generated pages, sorted.
func renderRobots(rc config.RobotsConfig, sitemapURL string, pages []string) []byte {
	var b bytes.Buffer
	if rc.Sitemap != "" {
		sitemapURL = rc.Sitemap
	}
	if sitemapURL != "" {
		fmt.Fprintf(&b, "Sitemap: %s\n\n", sitemapURL)
	}

	if rc.Global != nil {
		b.WriteString("User-agent: *\n")
		writeDelay(&b, rc.CrawlDelay)
		writeRules(&b, "Allow", rc.Global.Allow)
		writeRules(&b, "Disallow", rc.Global.Disallow)
		b.WriteByte('\n')
	}

	for _, r := range rc.UserAgents {
		for _, agent := range r.UserAgents {
			fmt.Fprintf(&b, "User-agent: %s\n", agent)
		}
		writeDelay(&b, r.CrawlDelay)
		writeRules(&b, "Allow", r.Allow)
		if rc.AutoIncludeGeneratedHTML && len(pages) > 0 {
			b.WriteString("# Generated pages\n")
			writeRules(&b, "Allow", pages)
		}
		writeRules(&b, "Disallow", r.Disallow)
		b.WriteByte('\n')
	}

	if rc.AutoDisallowNonIncludedHTML {
		blocked := notAllowed(rc, pages)
		agents := robotsAgents(rc)
		if len(blocked) > 0 && len(agents) > 0 {
			b.WriteString("# Generated pages not covered by an allow rule\n")
			for _, agent := range agents {
				fmt.Fprintf(&b, "User-agent: %s\n", agent)
				writeRules(&b, "Disallow", blocked)
				b.WriteByte('\n')
			}
		}
	}
	return b.Bytes()
}

func writeDelay(b *bytes.Buffer, delay int) {
	if delay > 0 {
		fmt.Fprintf(b, "Crawl-delay: %d\n", delay)
	}
}

func writeRules(b *bytes.Buffer, directive string, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(b, "%s: %s\n", directive, p)
	}
}

// notAllowed returns the pages no allow prefix covers.
func notAllowed(rc config.RobotsConfig, pages []string) []string {
	var allow []string
	if rc.Global != nil {
		allow = append(allow, rc.Global.Allow...)
	}
	for _, r := range rc.UserAgents {
		allow = append(allow, r.Allow...)
	}
	var out []string
	for _, p := range pages {
		if !slices.ContainsFunc(allow, func(prefix string) bool { return strings.HasPrefix(p, prefix) }) {
			out = append(out, p)
		}
	}
	return out
}

// robotsAgents lists every configured user agent once, sorted.
func robotsAgents(rc config.RobotsConfig) []string {
	var agents []string
	for _, r := range rc.UserAgents {
		agents = append(agents, r.UserAgents...)
	}
	slices.Sort(agents)
	return slices.Compact(agents)
}

// writeRobots regenerates robots.txt from the pages that currently have
// output. Like the sitemap, a failure is reported against the artifact.
func (s *Scheduler) writeRobots(res *BuildResult, items []*content.Item) {
	if !s.cfg.Robots.Enabled {
		return
	}
	var pages []string
	for _, it := range items {
		if _, ok := s.artifacts[it.OutputPath]; ok {
			pages = append(pages, "/"+it.OutputPath)
		}
	}
	slices.Sort(pages)

	var sitemapURL string
	if s.cfg.Sitemap {
		sitemapURL = strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + SitemapFile
	}
	data := renderRobots(s.cfg.Robots, sitemapURL, pages)
	if err := s.writeArtifact(res, RobotsFile, data, nil); err != nil {
		s.fail(res, Failure{Source: RobotsFile, Artifact: RobotsFile, Err: err})
	}
}
