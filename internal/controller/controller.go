// Package controller orchestrates one crawl: it owns the global and
// per-page deduplication filters, the link-graph store, and the pending
// queue, and drives the httpengine reactor to completion. It replaces the
// worker-pool coordinator this codebase's lineage has historically used
// with the single-threaded cooperative model the crawl now requires —
// there is no goroutine per request and no channel between stages; every
// callback runs synchronously on the goroutine that calls Crawl, from
// within Dispatch or, for a request that fails before it is registered,
// directly from the engine's Request call.
package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/duskwren/webcrawler/internal/filter"
	"github.com/duskwren/webcrawler/internal/graph"
	"github.com/duskwren/webcrawler/internal/httpengine"
	"github.com/duskwren/webcrawler/internal/platform/htmlparser"
	"github.com/duskwren/webcrawler/internal/urlcanon"
)

// Config configures a Controller. Zero-valued fields fall back to the
// documented package defaults, the same way httpengine.Config and the
// teacher's httpclient.Config do.
type Config struct {
	// StartURL is the seed, an absolute http:// URL.
	StartURL string
	// Output receives the two-block link-graph report once the crawl
	// settles.
	Output io.Writer

	ConnTimeout      time.Duration
	MaxBodyBytes     int64
	GlobalFilterBits uint32
	PageFilterBits   uint32

	// MaxPages caps how many distinct pages are ever submitted for
	// fetching. Zero means unlimited. This is a safety valve, not a core
	// crawl semantic: without it a misconfigured seed can run forever.
	MaxPages int

	// MaxInFlight soft-caps how many requests this controller will have
	// submitted to the engine at once. Zero means unlimited. The engine
	// itself has no such cap; this only throttles how eagerly the
	// controller calls Request, queuing the rest until a slot frees up.
	MaxInFlight int
}

// Controller runs one crawl to completion.
type Controller struct {
	cfg Config
	ctx context.Context

	global *filter.Filter
	store  *graph.Store
	engine *httpengine.Engine

	pending []string

	inFlight      int
	inFlightQueue []string

	visitCount int
	errorCount int
	logger     *log.Logger
}

// New validates cfg and prepares a Controller. It does not start fetching;
// call Crawl to do that.
func New(cfg Config) (*Controller, error) {
	if cfg.Output == nil {
		return nil, fmt.Errorf("controller: Config.Output is required")
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = httpengine.DefaultConnTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpengine.DefaultMaxBodyBytes
	}
	if cfg.GlobalFilterBits == 0 {
		cfg.GlobalFilterBits = filter.DefaultGlobalBits
	}
	if cfg.PageFilterBits == 0 {
		cfg.PageFilterBits = filter.DefaultPageBits
	}

	if _, ok := urlcanon.FixURL(cfg.StartURL, ""); !ok {
		return nil, fmt.Errorf("controller: %q is not a resolvable absolute http URL", cfg.StartURL)
	}

	engine, err := httpengine.New(httpengine.Config{
		ConnTimeout:  cfg.ConnTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	return &Controller{
		cfg:    cfg,
		ctx:    context.Background(),
		global: filter.New(cfg.GlobalFilterBits),
		store:  graph.New(),
		engine: engine,
		logger: log.Default(),
	}, nil
}

// pageContext is the typed continuation state carried from a successful
// fetch into every link discovered on that page — the Go analogue of the
// reference implementation's (callback, void* context) pair, but with an
// actual type instead of an erased pointer.
type pageContext struct {
	srcURL     string
	pageFilter *filter.Filter
}

// Crawl seeds the frontier with the configured start URL and runs the
// reactor until both it and the pending queue are empty, or ctx is
// cancelled. Cancellation stops new links from being submitted; requests
// already in flight are allowed to finish their current Dispatch pass
// before Crawl returns. It does not write the report; call Flush
// afterward, whether Crawl returns nil or ctx's cancellation caused an
// early return.
func (c *Controller) Crawl(ctx context.Context) error {
	start := time.Now()
	c.ctx = ctx

	c.processURL(c.cfg.StartURL, nil)

	for {
		if err := c.engine.Dispatch(); err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		if len(c.pending) == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.drainPending()
	}

	c.logger.Printf(
		"controller: crawl finished: %d pages visited, %d errors, %s elapsed",
		c.visitCount, c.errorCount, time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Flush writes the accumulated link graph to Config.Output.
func (c *Controller) Flush() error {
	return c.store.WriteReport(c.cfg.Output)
}

// Close releases the controller's reactor and global filter. The caller
// must have already drained Crawl to completion.
func (c *Controller) Close() error {
	c.global.Close()
	return c.engine.Close()
}

// processURL canonicalizes raw (against pageCtx's source URL when present),
// records the discovered edge, and submits a fetch if this is the URL's
// first sighting and it has not exceeded the page cap. This is the single
// entry point for both the seed URL (pageCtx == nil) and every href found
// on a fetched page.
func (c *Controller) processURL(raw string, pageCtx *pageContext) {
	var referrer string
	if pageCtx != nil {
		referrer = pageCtx.srcURL
	}

	canon, ok := urlcanon.FixURL(raw, referrer)
	if !ok {
		c.logger.Printf("controller: failed to parse %q (referrer %q)", raw, referrer)
		return
	}

	if pageCtx != nil {
		if pageCtx.pageFilter.Test(canon) {
			return
		}
		pageCtx.pageFilter.Add(canon)
		c.store.Connect(pageCtx.srcURL, canon)
	}

	if c.global.Test(canon) {
		return
	}
	if c.cfg.MaxPages > 0 && c.visitCount >= c.cfg.MaxPages {
		return
	}

	c.global.Add(canon)
	c.visitCount++
	c.submit(canon)
}

// submit either hands url to the engine immediately or, if MaxInFlight is
// set and already saturated, defers it to inFlightQueue until a slot frees
// up in onResult.
func (c *Controller) submit(url string) {
	if c.cfg.MaxInFlight > 0 && c.inFlight >= c.cfg.MaxInFlight {
		c.inFlightQueue = append(c.inFlightQueue, url)
		return
	}
	c.inFlight++
	c.engine.Request(url, c.onResult)
}

// onResult is the fetch engine's callback for every request this
// controller submits. It owns the pending-queue retry policy the engine
// itself deliberately does not implement.
func (c *Controller) onResult(url string, status httpengine.Status, body []byte) {
	c.inFlight--

	if status == httpengine.StatusFdLimit {
		c.pending = append(c.pending, url)
		return
	}

	c.drainPending()
	c.drainInFlightQueue()

	if status != httpengine.StatusSucc {
		c.errorCount++
		c.logger.Printf("controller: fetch failed for %s: %s", url, status)
		return
	}

	pf := filter.New(c.cfg.PageFilterBits)
	defer pf.Close()

	links, err := htmlparser.ExtractLinks(bytes.NewReader(body))
	if err != nil {
		c.errorCount++
		c.logger.Printf("controller: failed to parse html from %s: %v", url, err)
		return
	}

	if c.ctx.Err() != nil {
		// Cancelled: stop discovering and submitting new links, but let
		// whatever is already in flight finish out its Dispatch pass.
		return
	}

	pageCtx := &pageContext{srcURL: url, pageFilter: pf}
	for _, href := range links {
		c.processURL(href, pageCtx)
	}
}

// drainPending retries every request that previously failed with
// StatusFdLimit. It is called once per completed fetch, on the theory
// that a just-closed socket has freed exactly one descriptor — enough
// to guarantee the retry does not spin against an unchanged fd ceiling.
func (c *Controller) drainPending() {
	if len(c.pending) == 0 {
		return
	}
	queued := c.pending
	c.pending = nil
	for _, u := range queued {
		c.submit(u)
	}
}

// drainInFlightQueue submits queued URLs up to the MaxInFlight cap, freed up
// by the completion that just ran.
func (c *Controller) drainInFlightQueue() {
	for len(c.inFlightQueue) > 0 {
		if c.cfg.MaxInFlight > 0 && c.inFlight >= c.cfg.MaxInFlight {
			return
		}
		u := c.inFlightQueue[0]
		c.inFlightQueue = c.inFlightQueue[1:]
		c.inFlight++
		c.engine.Request(u, c.onResult)
	}
}
