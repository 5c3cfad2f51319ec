package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a browser cookie in the shape browsers and automation tools export.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Expired reports whether the cookie expired before now. Session cookies never expire.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expiry > 0 && time.Unix(int64(c.Expiry), 0).Before(now)
}

// HTTPCookie converts c for use with net/http.
func (c Cookie) HTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if hc.Path == "" {
		hc.Path = "/"
	}
	if c.Expiry > 0 {
		hc.Expires = time.Unix(int64(c.Expiry), 0)
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// CookieFile stores browser cookies as a JSON array.
type CookieFile struct {
	Path string
	// Domain keeps only cookies whose domain contains it; empty keeps all
	Domain string
}

// NewCookieFile returns a CookieFile at path filtered on domain.
func NewCookieFile(path, domain string) *CookieFile {
	return &CookieFile{Path: path, Domain: domain}
}

// Load returns the stored cookies matching the domain filter that have not
// expired. A missing file yields no cookies.
func (f *CookieFile) Load() ([]Cookie, error) {
	if f.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file %s: %w", f.Path, err)
	}

	var all []Cookie
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", f.Path, err)
	}

	now := time.Now()
	cookies := make([]Cookie, 0, len(all))
	for _, c := range all {
		if f.Domain != "" && !strings.Contains(c.Domain, f.Domain) {
			continue
		}
		if c.Expired(now) {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// Save replaces the file contents with cookies.
func (f *CookieFile) Save(cookies []Cookie) error {
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file %s: %w", f.Path, err)
	}
	return nil
}

// Jar loads the cookies into a jar scoped to siteURL.
func (f *CookieFile) Jar(siteURL string) (http.CookieJar, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site url %q: %w", siteURL, err)
	}

	cookies, err := f.Load()
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := c.HTTPCookie()
		// Host-only cookies must not carry a domain attribute for the jar to accept them.
		if strings.TrimPrefix(hc.Domain, ".") == u.Hostname() && !strings.HasPrefix(hc.Domain, ".") {
			hc.Domain = ""
		}
		httpCookies = append(httpCookies, hc)
	}
	jar.SetCookies(u, httpCookies)
	return jar, nil
}
