package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/lexicrawl/internal/config"
)

// Links is the classification of one listing page's anchors.
// Both slices hold absolute URLs in document order.
type Links struct {
	// Pages are "next page" links to enqueue.
	Pages []string

	// Details are links to fetch and return.
	Details []string
}

// Extractor splits a listing page body into page links and detail links.
// Implementations must be pure: the same input always yields the same Links.
type Extractor interface {
	Extract(base string, body []byte) (Links, error)
}

// LinkExtractor classifies anchors with a config.ClassificationRule:
//
//   - page link: <a class="{PageClass}"> with a child <img alt="{NextAlt}">
//   - detail link: <a class="{DetailClass}"> whose href contains {DetailMarker}
//
// Anchors matching neither rule are ignored, as are hrefs that do not
// resolve to absolute http(s) URLs.
type LinkExtractor struct {
	rule config.ClassificationRule
}

// NewLinkExtractor creates a LinkExtractor for rule.
func NewLinkExtractor(rule config.ClassificationRule) *LinkExtractor {
	return &LinkExtractor{rule: rule}
}

// Rule returns the classification rule.
func (e *LinkExtractor) Rule() config.ClassificationRule {
	return e.rule
}

// Extract implements Extractor. Relative hrefs are resolved against base.
func (e *LinkExtractor) Extract(base string, body []byte) (Links, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Links{}, fmt.Errorf("%w: %w", ErrUnparsableBody, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	links := Links{
		Pages:   make([]string, 0, 1),
		Details: make([]string, 0),
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		switch {
		case e.isPageLink(a):
			if u, ok := resolve(base, href); ok {
				links.Pages = append(links.Pages, u)
			}
		case e.isDetailLink(a, href):
			if u, ok := resolve(base, href); ok {
				links.Details = append(links.Details, u)
			}
		}
	})

	return links, nil
}

// isPageLink reports whether a carries the page class and a direct child
// image whose alt text is the "next" sentinel.
func (e *LinkExtractor) isPageLink(a *goquery.Selection) bool {
	if !a.HasClass(e.rule.PageClass) {
		return false
	}
	next := a.ChildrenFiltered("img").FilterFunction(func(_ int, img *goquery.Selection) bool {
		alt, _ := img.Attr("alt")
		return alt == e.rule.NextAlt
	})
	return next.Length() > 0
}

// isDetailLink reports whether a carries the detail class and its href
// contains the detail marker.
func (e *LinkExtractor) isDetailLink(a *goquery.Selection, href string) bool {
	return a.HasClass(e.rule.DetailClass) && strings.Contains(href, e.rule.DetailMarker)
}

// resolve resolves href against base and keeps only absolute http(s) URLs.
func resolve(base, href string) (string, bool) {
	u, err := config.ResolveURL(base, href)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
