// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
capxml.go - CAP 1.2 XML decoding

Publishers deliver the same schema under different spellings: bare <alert>,
namespace-prefixed <cap:alert>, occasionally with undeclared prefixes. The
decoder strips namespaces at the token level so every variant unmarshals into
the same structs. Field values are preserved verbatim apart from whitespace
trimming; transformation to the canonical record happens in transform.go.
*/

package capfeed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// capTimeLayouts are the timestamp formats observed across feeds, tried in
// order. CAP 1.2 mandates the first; the rest appear in the wild anyway.
var capTimeLayouts = []string{
	"2006-01-02T15:04:05-07:00",
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// capDocument mirrors the CAP 1.2 <alert> element.
type capDocument struct {
	XMLName    xml.Name `xml:"alert"`
	Identifier string   `xml:"identifier"`
	Sender     string   `xml:"sender"`
	Sent       string   `xml:"sent"`
	Status     string   `xml:"status"`
	MsgType    string   `xml:"msgType"`
	Scope      string   `xml:"scope"`
	Codes      []string `xml:"code"`
	Note       string   `xml:"note"`
	References string   `xml:"references"`
	Incidents  string   `xml:"incidents"`
	Info       []capInfo `xml:"info"`
}

type capInfo struct {
	Language      string         `xml:"language"`
	Categories    []string       `xml:"category"`
	Event         string         `xml:"event"`
	ResponseTypes []string       `xml:"responseType"`
	Urgency       string         `xml:"urgency"`
	Severity      string         `xml:"severity"`
	Certainty     string         `xml:"certainty"`
	Effective     string         `xml:"effective"`
	Onset         string         `xml:"onset"`
	Expires       string         `xml:"expires"`
	SenderName    string         `xml:"senderName"`
	Headline      string         `xml:"headline"`
	Description   string         `xml:"description"`
	Instruction   string         `xml:"instruction"`
	Web           string         `xml:"web"`
	Contact       string         `xml:"contact"`
	Parameters    []capNameValue `xml:"parameter"`
	Areas         []capArea      `xml:"area"`
}

type capNameValue struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

type capArea struct {
	AreaDesc string         `xml:"areaDesc"`
	Polygons []string       `xml:"polygon"`
	Circles  []string       `xml:"circle"`
	Geocodes []capNameValue `xml:"geocode"`
	Altitude string         `xml:"altitude"`
	Ceiling  string         `xml:"ceiling"`
}

// rssDocument mirrors the RSS index feed: rss > channel > item.
type rssDocument struct {
	XMLName xml.Name  `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// nsStripper is an xml.TokenReader that clears namespace information from
// element and attribute names. After stripping, <cap:alert> and <alert>
// decode identically; attribute values pass through untouched.
type nsStripper struct {
	dec *xml.Decoder
}

func (s nsStripper) Token() (xml.Token, error) {
	tok, err := s.dec.Token()
	if tok == nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		t.Name.Space = ""
		for i := range t.Attr {
			t.Attr[i].Name.Space = ""
		}
		return t, err
	case xml.EndElement:
		t.Name.Space = ""
		return t, err
	}
	return tok, err
}

// decodeXML unmarshals data into v through the namespace-stripping decoder.
// Non-strict mode tolerates the malformed entity references and undeclared
// prefixes that some publishers emit.
func decodeXML(data []byte, v interface{}) error {
	inner := xml.NewDecoder(bytes.NewReader(data))
	inner.Strict = false
	dec := xml.NewTokenDecoder(nsStripper{dec: inner})
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("xml decode failed: %w", err)
	}
	return nil
}

// parseCAPTime parses a CAP timestamp string into an absolute instant.
// Returns nil for empty or unparseable values.
func parseCAPTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range capTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
