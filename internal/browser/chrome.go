package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Chrome is the production session factory. With an empty RemoteURL it
// spawns a local headless Chrome per session; otherwise it attaches to
// the remote DevTools endpoint, one isolated browser context per
// session.
type Chrome struct {
	Headless  bool
	RemoteURL string
	UserAgent string
	Log       zerolog.Logger
}

// Ready probes the remote DevTools endpoint. It is a no-op for locally
// spawned Chrome.
func (c *Chrome) Ready(ctx context.Context) error {
	if c.RemoteURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.RemoteURL, "/")+"/json/version", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("devtools endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// NewSession creates an isolated Chrome context tied to ctx. Cancelling
// ctx tears the session down as well.
func (c *Chrome) NewSession(ctx context.Context) (Session, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if c.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, c.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", c.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("incognito", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("no-default-browser-check", true),
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.UserAgent(c.UserAgent),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to enable network events: %w", err)
	}

	s := &chromeSession{
		top:     browserCtx,
		cur:     browserCtx,
		cancels: []context.CancelFunc{allocCancel, browserCancel},
		log:     c.Log.With().Str("session_id", uuid.NewString()).Logger(),
	}
	s.log.Debug().Bool("remote", c.RemoteURL != "").Msg("browser session opened")
	return s, nil
}

// queryOptions maps the lookup strategy onto chromedp query options.
func (l Locator) queryOptions() []chromedp.QueryOption {
	switch l.By {
	case ByID:
		return []chromedp.QueryOption{chromedp.ByID}
	case BySearch:
		return []chromedp.QueryOption{chromedp.BySearch}
	default:
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
}

type chromeSession struct {
	top context.Context
	// cur is the frame target commands run against; top until
	// SwitchFrame retargets it.
	cur       context.Context
	cancels   []context.CancelFunc
	closeOnce sync.Once
	log       zerolog.Logger
}

func (s *chromeSession) Navigate(url string) error {
	s.cur = s.top
	return chromedp.Run(s.top, chromedp.Navigate(url))
}

func (s *chromeSession) WaitVisible(loc Locator, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(s.cur, timeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitVisible(loc.Sel, loc.queryOptions()...))
}

func (s *chromeSession) Exists(loc Locator) (bool, error) {
	var probe string
	switch loc.By {
	case BySearch:
		probe = fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue !== null`,
			loc.Sel)
	default:
		probe = fmt.Sprintf(`document.querySelector(%q) !== null`, loc.Sel)
	}
	var exists bool
	if err := chromedp.Run(s.cur, chromedp.Evaluate(probe, &exists)); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *chromeSession) Click(loc Locator) error {
	return chromedp.Run(s.cur, chromedp.Click(loc.Sel, loc.queryOptions()...))
}

func (s *chromeSession) Clear(loc Locator) error {
	return chromedp.Run(s.cur, chromedp.Clear(loc.Sel, loc.queryOptions()...))
}

func (s *chromeSession) SendKeys(loc Locator, value string) error {
	return chromedp.Run(s.cur, chromedp.SendKeys(loc.Sel, value, loc.queryOptions()...))
}

func (s *chromeSession) Evaluate(expr string, out any) error {
	return chromedp.Run(s.cur, chromedp.Evaluate(expr, out))
}

func (s *chromeSession) Cookies() ([]Cookie, error) {
	var cookies []Cookie
	err := chromedp.Run(s.top, chromedp.ActionFunc(func(ctx context.Context) error {
		cs, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cs {
			cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

func (s *chromeSession) SwitchFrame(urlPart string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		infos, err := chromedp.Targets(s.top)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if info.Type != "iframe" || !strings.Contains(info.URL, urlPart) {
				continue
			}
			fctx, cancel := chromedp.NewContext(s.top, chromedp.WithTargetID(info.TargetID))
			if err := chromedp.Run(fctx); err != nil {
				cancel()
				return fmt.Errorf("failed to attach to frame %s: %w", info.URL, err)
			}
			s.cancels = append(s.cancels, cancel)
			s.cur = fctx
			s.log.Debug().Str("frame", info.URL).Msg("switched frame")
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-s.top.Done():
			return s.top.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *chromeSession) SwitchToTop() {
	s.cur = s.top
}

func (s *chromeSession) Sleep(d time.Duration) {
	_ = chromedp.Run(s.cur, chromedp.Sleep(d))
}

func (s *chromeSession) Close() {
	s.closeOnce.Do(func() {
		for i := len(s.cancels) - 1; i >= 0; i-- {
			s.cancels[i]()
		}
		s.log.Debug().Msg("browser session closed")
	})
}
