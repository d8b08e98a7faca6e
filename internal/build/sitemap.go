package build

import (
	"bytes"
	"encoding/xml"
	"strings"

	"git.home.luguber.info/inful/mdsite/internal/content"
)

// SitemapFile is the output path of the generated sitemap.
const SitemapFile = "sitemap.xml"

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// renderSitemap lists items (already sorted by source path) in the
// sitemaps.org format. Locations are absolute when baseURL is set.
func renderSitemap(baseURL string, items []*content.Item) ([]byte, error) {
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	base := strings.TrimSuffix(baseURL, "/")
	for _, it := range items {
		u := sitemapURL{Loc: base + it.URL}
		if !it.ModTime.IsZero() {
			u.LastMod = it.ModTime.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writeSitemap regenerates the sitemap from the pages that currently have
// output. Failures are reported against the sitemap artifact and do not
// abort the build.
func (s *Scheduler) writeSitemap(res *BuildResult, items []*content.Item) {
	if !s.cfg.Sitemap {
		return
	}
	var live []*content.Item
	for _, it := range items {
		if _, ok := s.artifacts[it.OutputPath]; ok {
			live = append(live, it)
		}
	}
	data, err := renderSitemap(s.cfg.BaseURL, live)
	if err == nil {
		err = s.writeArtifact(res, SitemapFile, data, nil)
	}
	if err != nil {
		s.fail(res, Failure{Source: SitemapFile, Artifact: SitemapFile, Err: err})
	}
}
