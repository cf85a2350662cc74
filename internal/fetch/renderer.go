package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// FormShape describes one known login-form layout on the proxy gateway.
// Shapes are tried in order; the first whose fields exist wins.
type FormShape struct {
	User   string
	Pass   string
	Submit string
}

// DefaultFormShapes covers the common EZproxy-style gateway templates.
var DefaultFormShapes = []FormShape{
	{User: `input[name="user"]`, Pass: `input[name="pass"]`, Submit: `input[type="submit"]`},
	{User: `input[name="username"]`, Pass: `input[name="password"]`, Submit: `button[type="submit"]`},
	{User: `#username`, Pass: `#password`, Submit: `input[type="submit"]`},
}

// RendererConfig captures the headless rendering knobs.
type RendererConfig struct {
	NavTimeout    time.Duration
	UserAgent     string
	DenialPhrases []string
	ProxyHost     string
	FormShapes    []FormShape
}

// Renderer obtains the post-JavaScript DOM through an isolated headless
// browser and re-runs the extraction cascade against it. One browser
// instance is launched per call and released on every exit path;
// correctness over efficiency, since these calls are rare and slow.
type Renderer struct {
	cfg       RendererConfig
	extractor *Extractor
	logger    *zap.Logger
}

// NewRenderer builds a Renderer sharing the static extraction cascade.
func NewRenderer(cfg RendererConfig, extractor *Extractor, logger *zap.Logger) *Renderer {
	if len(cfg.FormShapes) == 0 {
		cfg.FormShapes = DefaultFormShapes
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	return &Renderer{cfg: cfg, extractor: extractor, logger: logger}
}

// Fetch renders the page and extracts its main content.
func (r *Renderer) Fetch(ctx context.Context, targetURL string, creds Credentials) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Failuref(ClassConnection, "renderer panic: %v", rec)
		}
	}()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(r.cfg.UserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.cfg.NavTimeout)
	defer cancelNav()

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.cfg.UserAgent),
	}
	if len(creds.Cookies) > 0 {
		tasks = append(tasks, r.setCookiesAction(targetURL, creds))
	}
	tasks = append(tasks,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	if err := chromedp.Run(navCtx, tasks); err != nil {
		// A timed-out navigation is non-fatal: extract whatever loaded.
		if !errors.Is(err, context.DeadlineExceeded) {
			return Failuref(ClassConnection, "render navigation failed: %v", err)
		}
		r.logger.Debug("render navigation timed out, salvaging partial page",
			zap.String("url", targetURL),
		)
	}

	snapshot, err := r.snapshot(tabCtx)
	if err != nil {
		return Failuref(ClassConnection, "render snapshot failed: %v", err)
	}

	if r.isProxyLogin(snapshot.location) {
		if !creds.HasProxyLogin() {
			return Failure(ClassNoCredentials,
				"proxy login page reached but no proxy credentials provided")
		}
		if loginErr := r.submitLogin(tabCtx, creds); loginErr != nil {
			return Failuref(ClassAuthRequired, "proxy login failed: %v", loginErr)
		}
		snapshot, err = r.snapshot(tabCtx)
		if err != nil {
			return Failuref(ClassConnection, "render snapshot after login failed: %v", err)
		}
	}

	if phrase := r.denialPhrase(snapshot.visible); phrase != "" {
		// Deterministic failure regardless of how much text rendered.
		return Failuref(ClassAccessDenied, "access denied: page contains %q", phrase)
	}

	outcome := r.extractor.Extract([]byte(snapshot.outerHTML), targetURL)
	if outcome.OK {
		outcome.Reason = "rendered: " + outcome.Reason
	}
	return outcome
}

type pageSnapshot struct {
	location  string
	outerHTML string
	visible   string
}

// snapshot grabs the current location, DOM, and visible text with its own
// short deadline so a hung tab cannot block forever.
func (r *Renderer) snapshot(tabCtx context.Context) (pageSnapshot, error) {
	grabCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	var snap pageSnapshot
	err := chromedp.Run(grabCtx,
		chromedp.Location(&snap.location),
		chromedp.OuterHTML("html", &snap.outerHTML, chromedp.ByQuery),
		chromedp.Text("body", &snap.visible, chromedp.ByQuery),
	)
	if err != nil {
		return pageSnapshot{}, err
	}
	return snap, nil
}

func (r *Renderer) setCookiesAction(targetURL string, creds Credentials) chromedp.Action {
	domain := ""
	if parsed, err := url.Parse(targetURL); err == nil {
		domain = parsed.Hostname()
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for name, value := range creds.Cookies {
			param := network.SetCookie(name, value).WithPath("/")
			if domain != "" {
				param = param.WithDomain(domain)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", name, err)
			}
		}
		return nil
	})
}

// isProxyLogin detects the institutional proxy login page by URL pattern.
func (r *Renderer) isProxyLogin(location string) bool {
	if r.cfg.ProxyHost == "" || location == "" {
		return false
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.Contains(host, strings.ToLower(r.cfg.ProxyHost)) &&
		strings.Contains(strings.ToLower(parsed.Path), "login")
}

// submitLogin tries each known form shape; the first whose fields exist
// gets the credentials. Best effort: submission errors surface, missing
// shapes do not.
func (r *Renderer) submitLogin(tabCtx context.Context, creds Credentials) error {
	loginCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavTimeout)
	defer cancel()

	for _, shape := range r.cfg.FormShapes {
		exists := false
		check := fmt.Sprintf(
			"document.querySelector(%q) !== null && document.querySelector(%q) !== null",
			shape.User, shape.Pass,
		)
		if err := chromedp.Run(loginCtx, chromedp.Evaluate(check, &exists)); err != nil {
			return fmt.Errorf("probe login form: %w", err)
		}
		if !exists {
			continue
		}
		err := chromedp.Run(loginCtx,
			chromedp.SendKeys(shape.User, creds.ProxyUser, chromedp.ByQuery),
			chromedp.SendKeys(shape.Pass, creds.ProxyPass, chromedp.ByQuery),
			chromedp.Click(shape.Submit, chromedp.ByQuery),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("submit login form: %w", err)
		}
		return nil
	}
	return errors.New("no known login form shape matched")
}

func (r *Renderer) denialPhrase(visibleText string) string {
	lower := strings.ToLower(visibleText)
	for _, phrase := range r.cfg.DenialPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}
