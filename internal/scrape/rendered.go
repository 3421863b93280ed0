package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// RenderedConfig controls the headless browser visitor.
type RenderedConfig struct {
	UserAgent         string
	MaxTabs           int
	NavigationTimeout time.Duration
}

// RenderedVisitor loads pages in headless Chrome so client-rendered listings
// are fully populated before extraction. Tabs share one browser process.
type RenderedVisitor struct {
	cfg         RenderedConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ Visitor = (*RenderedVisitor)(nil)

// NewRenderedVisitor builds a RenderedVisitor backed by chromedp.
func NewRenderedVisitor(cfg RenderedConfig) (*RenderedVisitor, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxTabs > 0 {
		limiter = make(chan struct{}, cfg.MaxTabs)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &RenderedVisitor{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Visit renders the URL in a fresh tab and parses the resulting DOM.
func (v *RenderedVisitor) Visit(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := v.acquire(ctx); err != nil {
		return nil, err
	}
	defer v.release()

	tabCtx, tabCancel := chromedp.NewContext(v.allocator)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, v.cfg.NavigationTimeout)
	defer cancel()

	// Stop the tab as soon as the caller's budget runs out.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var html string
	actions := []chromedp.Action{
		v.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

func (v *RenderedVisitor) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if v.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(v.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (v *RenderedVisitor) acquire(ctx context.Context) error {
	if v.limiter == nil {
		return nil
	}
	select {
	case v.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (v *RenderedVisitor) release() {
	if v.limiter == nil {
		return
	}
	select {
	case <-v.limiter:
	default:
	}
}

// Close shuts down the shared browser allocator.
func (v *RenderedVisitor) Close() {
	v.allocCancel()
}
