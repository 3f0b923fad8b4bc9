// Package collytransport implements tracker.Transport using gocolly.
package collytransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

const defaultTimeout = 60 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Proxies are rotated round-robin across requests when set.
	Proxies []string
}

// Transport performs provider calls through a Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ tracker.Transport = (*Transport)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) (*Transport, error) {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	if len(cfg.Proxies) > 0 {
		switcher, err := proxy.RoundRobinProxySwitcher(cfg.Proxies...)
		if err != nil {
			return nil, fmt.Errorf("configure proxies: %w", err)
		}
		c.SetProxyFunc(switcher)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	// Clones share the backend client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	return &Transport{cfg: cfg, baseCollector: c}, nil
}

// Do executes a single provider request and returns the response body.
func (t *Transport) Do(ctx context.Context, req tracker.Request) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := t.buildCollector()
	t.configureCollectorHooks(collector, req, &body, &fetchErr)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if err := t.runCollector(ctx, collector, method, req.URL, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func (t *Transport) buildCollector() *colly.Collector {
	collector := t.baseCollector.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	return collector
}

func (t *Transport) configureCollectorHooks(
	hooks collectorHooks,
	req tracker.Request,
	body *[]byte,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptFor(req.Body))
		for key, values := range req.Header {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("%w: status %d: %w", tracker.ErrTransport, r.StatusCode, err)
			return
		}
		*fetchErr = fmt.Errorf("%w: %w", tracker.ErrTransport, err)
	})
}

func (t *Transport) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method, url string,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, url, nil, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: request canceled: %w", tracker.ErrTransport, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			if errors.Is(err, tracker.ErrTransport) {
				return err
			}
			return fmt.Errorf("%w: %w", tracker.ErrTransport, err)
		}
		return nil
	}
}

func acceptFor(body tracker.BodyType) string {
	if body == tracker.BodyJSON {
		return "application/json"
	}
	return "application/xml, text/xml;q=0.9, text/plain;q=0.8, */*;q=0.5"
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
		IdleConnTimeout:       90 * time.Second,
	}
}
