// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package capfeed

import (
	"net/url"
	"regexp"
	"strings"
)

// Some publishers answer 404 on their XML detail endpoint while the alert is
// still reachable through an HTML landing page. The fallback scrapes that page
// for either a link to the real XML document or an inline <alert> block.
var (
	fallbackLinkRe = regexp.MustCompile(`href=["']([^"']*FetchXMLFile[^"']*identifier[^"']*)["']`)

	inlineAlertRe = regexp.MustCompile(`(?is)(<(?:\w+:)?alert[\s>].*?</(?:\w+:)?alert>)`)
)

// extractFallbackLink returns the first XML detail link found in the HTML
// page, resolved against the page URL. Empty string when no link is present.
func extractFallbackLink(html []byte, pageURL string) string {
	m := fallbackLinkRe.FindSubmatch(html)
	if m == nil {
		return ""
	}
	link := strings.TrimSpace(string(m[1]))
	link = strings.ReplaceAll(link, "&amp;", "&")
	if link == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// extractInlineAlert returns the first raw <alert> XML block embedded in the
// HTML page, or nil when none is present.
func extractInlineAlert(html []byte) []byte {
	m := inlineAlertRe.FindSubmatch(html)
	if m == nil {
		return nil
	}
	return m[1]
}
