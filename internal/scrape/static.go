package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticConfig controls the plain HTTP visitor.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// StaticVisitor fetches pages over plain HTTP with a Colly collector. It is
// the fallback for sources that render server side.
type StaticVisitor struct {
	cfg  StaticConfig
	base *colly.Collector
}

var _ Visitor = (*StaticVisitor)(nil)

// NewStaticVisitor builds a StaticVisitor.
func NewStaticVisitor(cfg StaticConfig) *StaticVisitor {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	})
	return &StaticVisitor{cfg: cfg, base: c}
}

// Visit fetches the URL and parses the response body.
func (v *StaticVisitor) Visit(ctx context.Context, rawURL string) (*goquery.Document, error) {
	collector := v.base.Clone()
	if v.cfg.UserAgent != "" {
		collector.UserAgent = v.cfg.UserAgent
	}
	timeout := v.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("visit %s: %w", rawURL, fetchErr)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

// Close is a no-op for the static visitor.
func (v *StaticVisitor) Close() {}
