// Package collyfetcher probes candidate URLs with HEAD requests using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/docprobe/internal/probe"
)

const (
	defaultTimeout = 30 * time.Second
	// ReasonHTML marks a 200 that served an HTML page instead of a file.
	ReasonHTML = "html_response"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Cookie is sent verbatim on every request when non-empty.
	Cookie  string
	Timeout time.Duration
}

// Waiter gates requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Prober implements probe.Executor with colly HEAD requests.
type Prober struct {
	cfg           Config
	limiter       Waiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type headResult struct {
	responded   bool
	statusCode  int
	contentType string
	length      int64
	err         error
}

// New builds a Prober. A nil limiter disables per-host pacing.
func New(cfg Config, limiter Waiter) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Prober{cfg: cfg, limiter: limiter, baseCollector: c}
}

// Execute probes item.URL and classifies the response.
func (p *Prober) Execute(ctx context.Context, item probe.WorkItem) probe.Outcome {
	start := time.Now()
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, item.URL); err != nil {
			return probe.Failed(item, err)
		}
	}
	collector := p.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	var res headResult
	p.configureCollectorHooks(collector, &res)

	if err := p.runCollector(ctx, collector, item.URL); err != nil && res.err == nil {
		res.err = err
	}
	out := classify(item, res)
	out.Duration = time.Since(start)
	return out
}

func (p *Prober) configureCollectorHooks(hooks collectorHooks, res *headResult) {
	hooks.OnRequest(func(r *colly.Request) {
		if p.cfg.Cookie != "" {
			r.Headers.Set("Cookie", p.cfg.Cookie)
		}
		r.Headers.Set("Accept-Encoding", "identity")
	})
	hooks.OnResponse(func(r *colly.Response) {
		res.responded = true
		res.statusCode = r.StatusCode
		if r.Headers != nil {
			res.contentType = r.Headers.Get("Content-Type")
			if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil {
				res.length = n
			}
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			res.responded = true
			res.statusCode = r.StatusCode
			return
		}
		res.err = err
	})
}

func (p *Prober) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Head(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("probe request failed: %w", err)
		}
		return nil
	}
}

// classify maps a HEAD result onto an outcome: transport errors fail, a 200
// carrying a non-HTML body is found, and everything else is not found.
func classify(item probe.WorkItem, res headResult) probe.Outcome {
	if !res.responded {
		err := res.err
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return probe.Failed(item, err)
	}
	if res.statusCode != http.StatusOK {
		out := probe.NotFound(item, fmt.Sprintf("HTTP %d", res.statusCode))
		out.ContentType = res.contentType
		return out
	}
	if strings.Contains(strings.ToLower(res.contentType), "text/html") {
		out := probe.NotFound(item, ReasonHTML)
		out.ContentType = res.contentType
		return out
	}
	return probe.Found(item, res.length, res.contentType)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	}
}
