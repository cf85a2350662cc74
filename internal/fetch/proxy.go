package fetch

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Access method labels used in attempt plans, logs, and metrics.
const (
	MethodDirect            = "direct"
	MethodProxyLogin        = "proxy-login"
	MethodProxyDomainPrefix = "proxy-domain-prefix"
	MethodProxySubdomain    = "proxy-subdomain"
)

// Attempt is one (transformed URL, method label) entry in an access plan.
type Attempt struct {
	URL    string
	Method string
}

// Blocklist matches hosts against exact names and suffix wildcards. A
// match means the domain is known to paywall or bot-block direct access.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist compiles configured domain patterns. Patterns may be exact
// hosts ("sciencedirect.com" also matches subdomains) or explicit
// wildcards ("*.example.org").
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
			b.addSuffix(value)
		}
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether the host matches the blocklist.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// PlannerConfig wires the institutional proxy gateway into the planner.
type PlannerConfig struct {
	ProxyHost    string
	LoginPath    string
	ProbeTimeout time.Duration
}

// Planner decides, per target URL, the ordered list of access attempts:
// direct, via proxy login redirect, and via proxy URL rewriting.
type Planner struct {
	blocklist *Blocklist
	cfg       PlannerConfig
	logger    *zap.Logger

	// Probes are injectable for tests.
	dialProbe func(host string, timeout time.Duration) bool
	httpProbe func(url string, timeout time.Duration) bool
}

// NewPlanner builds a Planner over the given blocklist and proxy config.
func NewPlanner(blocklist *Blocklist, cfg PlannerConfig, logger *zap.Logger) *Planner {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login?url="
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	return &Planner{
		blocklist: blocklist,
		cfg:       cfg,
		logger:    logger,
		dialProbe: tcpProbe,
		httpProbe: httpRootProbe,
	}
}

// Plan returns the ordered attempts for the URL. Every branch terminates:
// the plan is a finite list, and the caller stops at the first success.
func (p *Planner) Plan(rawURL string) []Attempt {
	direct := Attempt{URL: rawURL, Method: MethodDirect}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return []Attempt{direct}
	}

	if !p.blocklist.IsBlocked(parsed.Hostname()) {
		return []Attempt{direct}
	}
	if p.cfg.ProxyHost == "" || !p.proxyReachable() {
		// Known-blocked domain without a usable proxy: direct access is
		// still worth one try, since network-level institutional access
		// (VPN, on-campus ranges) works in some deployments.
		p.logger.Debug("blocked domain, proxy unavailable; direct only",
			zap.String("host", parsed.Hostname()),
		)
		return []Attempt{direct}
	}

	attempts := []Attempt{
		direct,
		{URL: p.loginRedirectURL(rawURL), Method: MethodProxyLogin},
	}
	if rewritten := p.domainPrefixURL(parsed); rewritten != "" {
		attempts = append(attempts, Attempt{URL: rewritten, Method: MethodProxyDomainPrefix})
	}
	if rewritten := p.subdomainURL(parsed); rewritten != "" {
		attempts = append(attempts, Attempt{URL: rewritten, Method: MethodProxySubdomain})
	}
	return attempts
}

// proxyReachable probes the proxy host: a TCP connect plus an HTTP GET to
// the root as a corroborating signal. Either one succeeding is treated as
// reachable; the probes exist to skip pointless rewrites when the proxy is
// down or unreachable from this network.
func (p *Planner) proxyReachable() bool {
	tcpOK := p.dialProbe(p.cfg.ProxyHost, p.cfg.ProbeTimeout)
	httpOK := p.httpProbe("https://"+p.cfg.ProxyHost+"/", p.cfg.ProbeTimeout)
	p.logger.Debug("proxy reachability probe",
		zap.String("proxy", p.cfg.ProxyHost),
		zap.Bool("tcp", tcpOK),
		zap.Bool("http", httpOK),
	)
	return tcpOK || httpOK
}

// loginRedirectURL builds the login?url=<target> gateway form.
func (p *Planner) loginRedirectURL(rawURL string) string {
	return "https://" + p.cfg.ProxyHost + p.cfg.LoginPath + url.QueryEscape(rawURL)
}

// domainPrefixURL prefixes the target host onto the proxy domain:
// www.nature.com/articles/x -> www.nature.com.proxy.example.edu/articles/x
func (p *Planner) domainPrefixURL(target *url.URL) string {
	host := target.Hostname()
	if host == "" {
		return ""
	}
	rewritten := *target
	rewritten.Scheme = "https"
	rewritten.Host = host + "." + p.cfg.ProxyHost
	return rewritten.String()
}

// subdomainURL uses the hyphenated-host gateway form:
// www.nature.com/articles/x -> www-nature-com.proxy.example.edu/articles/x
func (p *Planner) subdomainURL(target *url.URL) string {
	host := target.Hostname()
	if host == "" {
		return ""
	}
	rewritten := *target
	rewritten.Scheme = "https"
	rewritten.Host = strings.ReplaceAll(host, ".", "-") + "." + p.cfg.ProxyHost
	return rewritten.String()
}

func tcpProbe(host string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, "443"), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func httpRootProbe(probeURL string, timeout time.Duration) bool {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(probeURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
