package fetch

import (
	"sort"
	"strings"
)

// Credentials are opaque pass-through secrets attached to outbound
// requests. The core never interprets them beyond header assembly.
type Credentials struct {
	Cookies map[string]string
	Bearer  string
	// ProxyUser and ProxyPass feed the institutional proxy login form.
	ProxyUser string
	ProxyPass string
}

// Empty reports whether no credential material is present.
func (c Credentials) Empty() bool {
	return len(c.Cookies) == 0 && c.Bearer == "" && c.ProxyUser == ""
}

// HasProxyLogin reports whether a proxy form submission is possible.
func (c Credentials) HasProxyLogin() bool {
	return c.ProxyUser != "" && c.ProxyPass != ""
}

// CookieHeader renders the cookies as a single Cookie header value.
func (c Credentials) CookieHeader() string {
	if len(c.Cookies) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(c.Cookies))
	for name, value := range c.Cookies {
		pairs = append(pairs, name+"="+value)
	}
	// Stable order keeps request signatures reproducible in tests.
	sort.Strings(pairs)
	return strings.Join(pairs, "; ")
}

// ParseCookieBlob normalizes raw copy-pasted cookie text into name=value
// pairs. Two paste formats are tolerated: the Cookie-header style
// "a=1; b=2" and the browser-devtools table style with one
// tab-separated "name<TAB>value<TAB>..." row per line.
func ParseCookieBlob(blob string) map[string]string {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil
	}
	cookies := make(map[string]string)
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "\t") {
			fields := strings.Split(line, "\t")
			name := strings.TrimSpace(fields[0])
			if name == "" || len(fields) < 2 {
				continue
			}
			cookies[name] = strings.TrimSpace(fields[1])
			continue
		}
		for _, pair := range strings.Split(line, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, found := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				continue
			}
			cookies[name] = strings.TrimSpace(value)
		}
	}
	if len(cookies) == 0 {
		return nil
	}
	return cookies
}
