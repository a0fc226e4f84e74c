// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
parser.go - CAP feed parsing pipeline

One fetch cycle per source: pull the RSS index, extract CAP identifiers from
the items, then fetch each alert's XML detail document. Detail fetches run on
a small worker pool paced by a shared rate limiter so a burst of new alerts
does not hammer the publisher. Individual alert failures are counted and
logged but never fail the batch; only an index fetch failure is an error.
*/

package capfeed

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

const (
	// defaultMaxItems caps how many index items are processed per cycle.
	// Feeds list newest first, so the cap keeps cycles bounded while still
	// catching everything across consecutive polls.
	defaultMaxItems = 20

	// defaultDetailDelay paces detail document fetches.
	defaultDetailDelay = 100 * time.Millisecond

	detailWorkers = 4
)

var (
	// linkIdentifierRe matches the identifier query parameter in detail links.
	linkIdentifierRe = regexp.MustCompile(`identifier=(\d+)`)

	// longDigitsRe matches the long numeric identifiers some feeds bury in
	// item titles or descriptions instead of links.
	longDigitsRe = regexp.MustCompile(`\d{16,}`)

	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
)

// Config tunes the parser. Zero values select defaults.
type Config struct {
	MaxItems    int
	DetailDelay time.Duration
	CacheTTL    time.Duration
	CacheSize   int
	HTTPTimeout time.Duration
}

// Parser fetches and parses CAP alerts from configured sources. Safe for
// concurrent use across sources.
type Parser struct {
	client   *Client
	cache    *alertCache
	breakers *breakerSet
	limiter  *rate.Limiter
	maxItems int

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	htmlFallbacks      atomic.Int64
	itemsDropped       atomic.Int64
}

// NewParser builds a parser with its own HTTP client, document cache, and
// per-source circuit breakers.
func NewParser(cfg Config) *Parser {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	delay := cfg.DetailDelay
	if delay <= 0 {
		delay = defaultDetailDelay
	}
	return &Parser{
		client:   NewClient(cfg.HTTPTimeout),
		cache:    newAlertCache(cfg.CacheSize, cfg.CacheTTL),
		breakers: newBreakerSet(),
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
		maxItems: maxItems,
	}
}

// Stats returns a snapshot of the parser's counters.
func (p *Parser) Stats() models.ParserStatsSnapshot {
	return models.ParserStatsSnapshot{
		TotalRequests:      p.totalRequests.Load(),
		SuccessfulRequests: p.successfulRequests.Load(),
		FailedRequests:     p.failedRequests.Load(),
		CacheHits:          p.cacheHits.Load(),
		CacheMisses:        p.cacheMisses.Load(),
		HTMLFallbacks:      p.htmlFallbacks.Load(),
		ItemsDropped:       p.itemsDropped.Load(),
	}
}

// FetchAlerts runs one full fetch for the source: index, identifier
// extraction, detail documents. The returned slice holds every alert that
// parsed successfully; the error is non-nil only when the index itself could
// not be fetched or parsed.
func (p *Parser) FetchAlerts(ctx context.Context, source *models.Source) ([]models.Alert, error) {
	p.totalRequests.Add(1)

	body, err := p.fetchThroughBreaker(ctx, source.Name, source.URL)
	if err != nil {
		p.failedRequests.Add(1)
		return nil, fmt.Errorf("index fetch for source %s failed: %w", source.Name, err)
	}

	items, err := p.parseIndex(body, source, time.Now().UTC())
	if err != nil {
		p.failedRequests.Add(1)
		return nil, err
	}
	// A feed that is itself a single CAP document short-circuits the index.
	if items.direct != nil {
		p.successfulRequests.Add(1)
		return []models.Alert{*items.direct}, nil
	}

	if dropped := len(items.refs) - p.maxItems; dropped > 0 {
		p.itemsDropped.Add(int64(dropped))
		metrics.ItemsDropped.Add(float64(dropped))
		logging.Debug().
			Str("source", source.Name).
			Int("dropped", dropped).
			Msg("index items beyond per-cycle cap dropped")
		items.refs = items.refs[:p.maxItems]
	}

	alerts := p.fetchDetails(ctx, source, items.refs)
	p.successfulRequests.Add(1)

	logging.Debug().
		Str("source", source.Name).
		Int("indexItems", len(items.refs)).
		Int("alerts", len(alerts)).
		Msg("fetch cycle parsed")
	return alerts, nil
}

// alertRef is one index item resolved to an identifier and a detail URL.
type alertRef struct {
	identifier string
	detailURL  string
	pageURL    string
}

type indexResult struct {
	refs   []alertRef
	direct *models.Alert
}

func (p *Parser) parseIndex(body []byte, source *models.Source, fetchedAt time.Time) (*indexResult, error) {
	var feed rssDocument
	if err := decodeXML(body, &feed); err != nil || len(feed.Channel.Items) == 0 {
		// Some sources serve a bare CAP document at the feed URL.
		var doc capDocument
		if capErr := decodeXML(body, &doc); capErr == nil && doc.Identifier != "" {
			alert, tErr := transformAlert(&doc, source.ID, fetchedAt)
			if tErr != nil {
				return nil, tErr
			}
			p.cache.Add(alert.Identifier, alert)
			return &indexResult{direct: alert}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("index parse for source %s failed: %w", source.Name, err)
		}
		return &indexResult{}, nil
	}

	res := &indexResult{}
	seen := make(map[string]bool)
	for i := range feed.Channel.Items {
		item := &feed.Channel.Items[i]
		identifier := extractIdentifier(item)
		if identifier == "" {
			p.itemsDropped.Add(1)
			metrics.ItemsDropped.Inc()
			logging.Debug().
				Str("source", source.Name).
				Str("title", item.Title).
				Msg("index item without extractable identifier dropped")
			continue
		}
		if seen[identifier] {
			continue
		}
		seen[identifier] = true
		res.refs = append(res.refs, alertRef{
			identifier: identifier,
			detailURL:  detailURL(source, item, identifier),
			pageURL:    strings.TrimSpace(item.Link),
		})
	}
	return res, nil
}

// extractIdentifier resolves a CAP identifier from an index item, trying the
// detail link's identifier parameter, then a purely numeric guid, then a long
// digit run in the title or description.
func extractIdentifier(item *rssItem) string {
	if m := linkIdentifierRe.FindStringSubmatch(item.Link); m != nil {
		return m[1]
	}
	if guid := strings.TrimSpace(item.GUID); digitsOnlyRe.MatchString(guid) {
		return guid
	}
	if m := longDigitsRe.FindString(item.Title + " " + item.Description); m != "" {
		return m
	}
	return ""
}

// detailURL picks the XML detail endpoint for an item. The item link wins
// when it already points at an XML document; otherwise the source's
// configured detail base, falling back to the conventional path on the feed
// host.
func detailURL(source *models.Source, item *rssItem, identifier string) string {
	link := strings.TrimSpace(item.Link)
	if link != "" && (strings.Contains(link, "FetchXMLFile") || strings.HasSuffix(link, ".xml")) {
		return link
	}

	if base := strings.TrimSpace(source.Metadata["detailBaseUrl"]); base != "" {
		if strings.Contains(base, "%s") {
			return fmt.Sprintf(base, identifier)
		}
		return base + identifier
	}

	if u, err := url.Parse(source.URL); err == nil && u.Host != "" {
		return fmt.Sprintf("%s://%s/cap_public_website/FetchXMLFile?identifier=%s",
			u.Scheme, u.Host, identifier)
	}
	return link
}

// fetchDetails resolves refs to alerts on a bounded worker pool. Order of the
// result follows completion, not index order; the writer sorts by sent time.
func (p *Parser) fetchDetails(ctx context.Context, source *models.Source, refs []alertRef) []models.Alert {
	if len(refs) == 0 {
		return nil
	}

	jobs := make(chan alertRef)
	results := make(chan models.Alert, len(refs))
	var wg sync.WaitGroup

	workers := detailWorkers
	if workers > len(refs) {
		workers = len(refs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				alert, err := p.fetchOneAlert(ctx, source, ref)
				if err != nil {
					p.failedRequests.Add(1)
					metrics.DetailRequestsTotal.WithLabelValues("failure").Inc()
					logging.Warn().
						Err(err).
						Str("source", source.Name).
						Str("identifier", ref.identifier).
						Msg("alert detail fetch failed")
					continue
				}
				metrics.DetailRequestsTotal.WithLabelValues("success").Inc()
				results <- *alert
			}
		}()
	}

	for _, ref := range refs {
		select {
		case jobs <- ref:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(results)
			return drainAlerts(results)
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	return drainAlerts(results)
}

func drainAlerts(results chan models.Alert) []models.Alert {
	alerts := make([]models.Alert, 0, len(results))
	for alert := range results {
		alerts = append(alerts, alert)
	}
	return alerts
}

// fetchOneAlert resolves a single ref: cache, then the XML detail endpoint,
// then the HTML fallback on 404.
func (p *Parser) fetchOneAlert(ctx context.Context, source *models.Source, ref alertRef) (*models.Alert, error) {
	if cached := p.cache.Get(ref.identifier); cached != nil {
		p.cacheHits.Add(1)
		metrics.CacheHits.Inc()
		cached.SourceID = source.ID
		return cached, nil
	}
	p.cacheMisses.Add(1)
	metrics.CacheMisses.Inc()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := p.fetchThroughBreaker(ctx, source.Name, ref.detailURL)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		body, err = p.fetchViaHTMLFallback(ctx, source, ref)
		if err != nil {
			return nil, err
		}
	}

	var doc capDocument
	if err := decodeXML(body, &doc); err != nil {
		return nil, fmt.Errorf("alert %s parse failed: %w", ref.identifier, err)
	}

	alert, err := transformAlert(&doc, source.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	p.cache.Add(alert.Identifier, alert)
	return alert, nil
}

// fetchViaHTMLFallback retries a 404'd detail through the item's HTML page:
// either a scraped link to the real XML document or an inline alert block.
func (p *Parser) fetchViaHTMLFallback(ctx context.Context, source *models.Source, ref alertRef) ([]byte, error) {
	if ref.pageURL == "" || ref.pageURL == ref.detailURL {
		return nil, fmt.Errorf("alert %s: detail returned 404 and no fallback page available", ref.identifier)
	}
	p.htmlFallbacks.Add(1)
	metrics.HTMLFallbacks.Inc()
	logging.Debug().
		Str("source", source.Name).
		Str("identifier", ref.identifier).
		Str("page", ref.pageURL).
		Msg("detail 404, trying html fallback")

	page, err := p.fetchThroughBreaker(ctx, source.Name, ref.pageURL)
	if err != nil {
		return nil, fmt.Errorf("alert %s fallback page fetch failed: %w", ref.identifier, err)
	}

	if link := extractFallbackLink(page, ref.pageURL); link != "" && link != ref.detailURL {
		return p.fetchThroughBreaker(ctx, source.Name, link)
	}
	if inline := extractInlineAlert(page); inline != nil {
		return inline, nil
	}
	return nil, fmt.Errorf("alert %s: fallback page has neither xml link nor inline alert", ref.identifier)
}

func (p *Parser) fetchThroughBreaker(ctx context.Context, sourceName, fetchURL string) ([]byte, error) {
	cb := p.breakers.get(sourceName)
	return cb.Execute(func() ([]byte, error) {
		return p.client.Get(ctx, fetchURL)
	})
}
