// Package scraper drives a headless Chromium through the carrier tracking
// flow and extracts the shipment data from the rendered pages.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/R3E-Network/jamef_tracker/internal/config"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

// TotalSteps is the number of progress steps reported to a StepObserver.
const TotalSteps = 7

// StepObserver is notified as each step of the flow starts.
type StepObserver func(step, total int, description string)

// Config configures a Scraper.
type Config struct {
	Profile    config.SiteProfile
	ChromePath string
	Headless   bool
	Logger     *logging.Logger

	// OnStep, when set, receives progress notifications.
	OnStep StepObserver
	// BeforeClose, when set, runs after the flow and before the browser is
	// closed. The interactive CLI uses it to keep a visible window open.
	BeforeClose func()
}

// Scraper implements tracking.Scraper with chromedp.
type Scraper struct {
	profile     config.SiteProfile
	chromePath  string
	headless    bool
	logger      *logging.Logger
	onStep      StepObserver
	beforeClose func()
}

var _ tracking.Scraper = (*Scraper)(nil)

// New creates a Scraper. A zero Profile falls back to the default profile.
func New(cfg Config) *Scraper {
	profile := cfg.Profile
	if profile.BaseURL == "" {
		profile = config.DefaultSiteProfile()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default("scraper")
	}
	return &Scraper{
		profile:     profile,
		chromePath:  cfg.ChromePath,
		headless:    cfg.Headless,
		logger:      logger,
		onStep:      cfg.OnStep,
		beforeClose: cfg.BeforeClose,
	}
}

// allocatorOptions returns the Chromium launch flags.
func (s *Scraper) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", s.headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.chromePath))
	}
	return opts
}

// Scrape runs the full tracking flow for q. The browser is closed before
// Scrape returns, whatever the outcome.
func (s *Scraper) Scrape(ctx context.Context, q tracking.Query) (*tracking.Result, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if s.beforeClose != nil {
		defer s.beforeClose()
	}

	log := s.logger.WithContext(ctx).WithField("nf", q.NF)
	start := time.Now()

	// Start the browser on the long-lived context; per-step timeouts below
	// derive from it and must not own the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	p := s.profile
	sel := p.Selectors

	s.step(1, "Acessando "+p.BaseURL)
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(p.BaseURL),
		chromedp.Sleep(p.Pauses.AfterLoad),
	); err != nil {
		return nil, fmt.Errorf("open %s: %w", p.BaseURL, err)
	}

	s.step(2, "Preenchendo NF "+q.NF)
	if err := s.runWithTimeout(browserCtx, p.Timeouts.NFInput,
		chromedp.WaitVisible(sel.NFInput, chromedp.ByQuery),
		chromedp.Clear(sel.NFInput, chromedp.ByQuery),
		chromedp.SendKeys(sel.NFInput, q.NF, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("fill nota fiscal: %w", err)
	}

	s.step(3, "Pesquisando NF")
	if err := s.click(browserCtx, sel.Submit); err != nil {
		return nil, fmt.Errorf("submit nota fiscal: %w", err)
	}
	if err := chromedp.Run(browserCtx, chromedp.Sleep(p.Pauses.AfterNFSubmit)); err != nil {
		return nil, fmt.Errorf("wait after nota fiscal submit: %w", err)
	}

	s.step(4, "Preenchendo CPF/CNPJ "+q.CNPJ)
	if err := s.runWithTimeout(browserCtx, p.Timeouts.CNPJInput,
		chromedp.WaitVisible(sel.CNPJInput, chromedp.ByQuery),
		chromedp.Clear(sel.CNPJInput, chromedp.ByQuery),
		chromedp.SendKeys(sel.CNPJInput, q.CNPJ, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("fill cnpj: %w", err)
	}

	s.step(5, "Pesquisando CPF/CNPJ")
	var pageHTML string
	if err := s.click(browserCtx, sel.Submit); err != nil {
		return nil, fmt.Errorf("submit cnpj: %w", err)
	}
	if err := s.runWithTimeout(browserCtx, p.Timeouts.ResultURL, waitURLContains(p.ResultPathMarker)); err != nil {
		return nil, fmt.Errorf("wait for result page: %w", err)
	}
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(p.Pauses.AfterResult),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read result page: %w", err)
	}

	s.step(6, "Capturando Previsão de Entrega")
	summary, err := ParseSummary(pageHTML)
	if err != nil {
		return nil, err
	}

	s.step(7, "Abrindo Histórico")
	var historyHTML string
	if err := s.click(browserCtx, sel.HistoryButton); err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := s.runWithTimeout(browserCtx, p.Timeouts.HistoryContent,
		chromedp.WaitVisible(sel.HistoryContent, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("wait for history: %w", err)
	}
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(p.Pauses.AfterHistory),
		chromedp.OuterHTML(sel.HistoryContent, &historyHTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	history, err := ParseHistory(historyHTML)
	if err != nil {
		return nil, err
	}

	result := &tracking.Result{
		NF:              q.NF,
		Origem:          summary.Origem,
		Destino:         summary.Destino,
		PrevisaoEntrega: summary.PrevisaoEntrega,
		Historico:       history,
	}
	result.Finalize()

	log.WithField("events", len(history)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("Scrape finished")
	return result, nil
}

func (s *Scraper) step(n int, description string) {
	s.logger.WithField("step", n).Debug(description)
	if s.onStep != nil {
		s.onStep(n, TotalSteps, description)
	}
}

// runWithTimeout runs actions with a deadline derived from the browser
// context, so the deadline cancels the actions but not the browser.
func (s *Scraper) runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(stepCtx, actions...)
}

// click presses the first element matching selector, failing once the
// profile's click timeout passes without the element becoming visible.
func (s *Scraper) click(ctx context.Context, selector string) error {
	return s.runWithTimeout(ctx, s.profile.Timeouts.Click, chromedp.Click(selector, chromedp.ByQuery))
}

// waitURLContains polls the current location until it contains marker.
func waitURLContains(marker string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			var location string
			if err := chromedp.Location(&location).Do(ctx); err != nil {
				return err
			}
			if strings.Contains(location, marker) {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("url never matched %q (last %q): %w", marker, location, ctx.Err())
			case <-ticker.C:
			}
		}
	})
}
