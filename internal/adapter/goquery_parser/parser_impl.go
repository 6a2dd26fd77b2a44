package goquery_parser

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

// securityHeaders are copied from the response into the page's side map.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"Permissions-Policy",
}

type GoqueryParser struct{}

// NewGoqueryParser creates a new page parser backed by goquery.
func NewGoqueryParser() repository.PageParser {
	return &GoqueryParser{}
}

// Parse extracts page facts and raw anchors. Anchors are returned unresolved; BaseHref carries
// the document's <base> so the caller can resolve them.
func (p *GoqueryParser) Parse(html []byte, finalURL, requestedURL string, header http.Header) (*entity.PageFacts, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	facts := &entity.PageFacts{
		Title:           collapse(doc.Find("title").First().Text()),
		OpenGraph:       make(map[string]string),
		SecurityHeaders: make(map[string]string),
	}

	// Extract Meta Tags
	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		facts.MetaTagCount++
		name := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		property := strings.ToLower(strings.TrimSpace(s.AttrOr("property", "")))
		content := strings.TrimSpace(s.AttrOr("content", ""))

		switch {
		case name == "description" && facts.MetaDescription == "":
			facts.MetaDescription = content
		case name == "robots":
			facts.MetaRobots = strings.ToLower(content)
		case name == "viewport":
			facts.HasViewport = true
		case strings.HasPrefix(name, "twitter:"):
			facts.HasTwitterCard = true
		}
		if strings.HasPrefix(property, "og:") && content != "" {
			facts.HasOpenGraph = true
			facts.OpenGraph[property] = content
		}
	})

	facts.H1Count = doc.Find("h1").Length()
	facts.H2Count = doc.Find("h2").Length()
	facts.H3Count = doc.Find("h3").Length()
	facts.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))
	facts.BaseHref = strings.TrimSpace(doc.Find("base[href]").First().AttrOr("href", ""))

	base := resolveBase(finalURL, facts.BaseHref)
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		facts.CanonicalURL = resolve(base, strings.TrimSpace(href))
	}

	// Extract Images
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		facts.ImageCount++
		if _, ok := s.Attr("alt"); !ok {
			facts.ImagesMissingAlt++
		}
	})

	facts.SchemaTypes = schemaTypes(doc)
	facts.HasJSONLD = doc.Find(`script[type="application/ld+json"]`).Length() > 0
	facts.HasMicrodata = doc.Find("[itemscope]").Length() > 0

	if strings.HasPrefix(finalURL, "https://") {
		doc.Find("img[src], script[src], iframe[src], link[href]").Each(func(i int, s *goquery.Selection) {
			ref := s.AttrOr("src", s.AttrOr("href", ""))
			if strings.HasPrefix(strings.ToLower(ref), "http://") {
				facts.MixedContent++
			}
		})
	}

	// Extract Links
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		rel := strings.ToLower(s.AttrOr("rel", ""))
		facts.Links = append(facts.Links, entity.Link{
			Href:     href,
			Anchor:   collapse(s.Text()),
			Nofollow: lo.Contains(strings.Fields(rel), "nofollow"),
		})
	})

	// Extract clean body text content
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	facts.WordCount = len(strings.Fields(body.Text()))

	for _, h := range securityHeaders {
		if v := header.Get(h); v != "" {
			facts.SecurityHeaders[strings.ToLower(h)] = v
		}
	}

	return facts, nil
}

// schemaTypes collects schema.org types from JSON-LD blocks and microdata itemtypes.
func schemaTypes(doc *goquery.Document) []string {
	var types []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		types = append(types, jsonLDTypes(payload)...)
	})
	doc.Find("[itemtype]").Each(func(i int, s *goquery.Selection) {
		for _, t := range strings.Fields(s.AttrOr("itemtype", "")) {
			types = append(types, t[strings.LastIndex(t, "/")+1:])
		}
	})
	return lo.Uniq(lo.Compact(types))
}

func jsonLDTypes(node any) []string {
	var out []string
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			out = append(out, jsonLDTypes(item)...)
		}
	case map[string]any:
		switch t := v["@type"].(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			out = append(out, jsonLDTypes(graph)...)
		}
	}
	return out
}

func resolveBase(finalURL, baseHref string) *url.URL {
	u, err := url.Parse(finalURL)
	if err != nil {
		return nil
	}
	if baseHref == "" {
		return u
	}
	if b, err := u.Parse(baseHref); err == nil {
		return b
	}
	return u
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	u, err := base.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
