package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"
)

const (
	previewMaxBody   = 1 << 20 // 1MB body cap
	previewTimeout   = 7 * time.Second
	previewCacheSize = 1024
	previewCacheTTL  = 24 * time.Hour
	previewUserAgent = "Mozilla/5.0 (compatible; HelixquePreview/1.0)"
)

// messageURLPattern finds the first http/https URL in a chat message.
var messageURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Preview errors. ErrNoURL means the message contained nothing to preview.
var (
	ErrNoURL          = errors.New("chat: no url in message")
	ErrPrivateAddress = errors.New("chat: url resolves to a private address")
	ErrNotHTML        = errors.New("chat: url is not an html page")
)

// Preview holds the metadata extracted from a linked page.
type Preview struct {
	URL         string
	Title       string
	Description string
	Image       string
}

// ExtractURL returns the first http/https URL in text, or "".
func ExtractURL(text string) string {
	return messageURLPattern.FindString(text)
}

// PreviewFetcher fetches link previews for URLs shared in chat. Fetches are
// bounded (1MB body, 7s deadline), refuse URLs that resolve to private or
// loopback addresses, and results are cached for 24 hours.
type PreviewFetcher struct {
	client *http.Client
	cache  *expirable.LRU[string, Preview]
}

// NewPreviewFetcher creates a PreviewFetcher with the standard bounds.
func NewPreviewFetcher() *PreviewFetcher {
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	transport := &http.Transport{
		// The address here is already resolved, so the check also covers
		// DNS entries that point at internal hosts.
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if isPrivateIP(ip.IP) {
					return nil, ErrPrivateAddress
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &PreviewFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   previewTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		cache: expirable.NewLRU[string, Preview](previewCacheSize, nil, previewCacheTTL),
	}
}

// Fetch returns the preview for rawURL, from cache when possible.
func (f *PreviewFetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Preview{}, fmt.Errorf("chat: invalid preview url %q", rawURL)
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil && isPrivateIP(ip) {
		return Preview{}, ErrPrivateAddress
	}

	if cached, ok := f.cache.Get(rawURL); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", previewUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Preview{}, fmt.Errorf("chat: preview fetch status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") {
		return Preview{}, ErrNotHTML
	}

	body := io.LimitReader(resp.Body, previewMaxBody)
	preview, err := parsePreview(body)
	if err != nil {
		return Preview{}, err
	}
	preview.URL = rawURL

	f.cache.Add(rawURL, preview)
	return preview, nil
}

// parsePreview extracts title, description and image from an HTML document,
// preferring Open Graph tags over plain <title>/<meta name=description>.
func parsePreview(r io.Reader) (Preview, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Preview{}, fmt.Errorf("chat: parse preview html: %w", err)
	}

	var p Preview
	var plainTitle, plainDesc string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && plainTitle == "" {
					plainTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "name":
						name = a.Val
					case "property":
						property = a.Val
					case "content":
						content = a.Val
					}
				}
				switch property {
				case "og:title":
					p.Title = content
				case "og:description":
					p.Description = content
				case "og:image":
					p.Image = content
				}
				if name == "description" && plainDesc == "" {
					plainDesc = content
				}
			case "body":
				// Metadata lives in <head>; no need to walk the body.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.Title == "" {
		p.Title = plainTitle
	}
	if p.Description == "" {
		p.Description = plainDesc
	}
	return p, nil
}

// isPrivateIP reports whether ip is loopback, link-local, unspecified or in a
// private range. Previews must never reach internal services.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
