// Package metadata fetches a domain's homepage and extracts a small preview
// (title, description, site name) for display next to lookup results.
package metadata

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/gobacklinks/internal/logger"
)

const (
	// defaultHTTPTimeout is the default timeout for HTTP requests
	defaultHTTPTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (compatible; GoBacklinks/1.0)"
)

// Preview represents the extracted homepage metadata for a domain.
type Preview struct {
	Domain      string `json:"domain"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// Extractor handles metadata extraction from domain homepages.
type Extractor struct {
	logger logger.Logger
	client *http.Client
}

// NewExtractor creates a new metadata extractor.
func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{
		logger: log,
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Extract fetches the domain's homepage over HTTPS and extracts preview
// metadata. The domain must already be normalized.
func (e *Extractor) Extract(ctx context.Context, domain string) (*Preview, error) {
	pageURL := "https://" + domain

	if err := validateURLScheme(pageURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set user agent to avoid bot blocking
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	preview := &Preview{
		Domain:      domain,
		URL:         pageURL,
		Title:       extractTitle(doc, domain),
		Description: metaContent(doc, "meta[property='og:description']", "meta[name='description']"),
		SiteName:    metaContent(doc, "meta[property='og:site_name']"),
	}

	e.logger.Info("Metadata extraction complete",
		logger.String("domain", domain),
		logger.String("title", preview.Title),
	)
	return preview, nil
}

// extractTitle picks a title from the page, preferring OpenGraph.
func extractTitle(doc *goquery.Document, fallback string) string {
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && ogTitle != "" {
		return ogTitle
	}
	if title := doc.Find("title").First().Text(); title != "" {
		return strings.TrimSpace(title)
	}
	return fallback
}

// metaContent returns the first non-empty content attribute among the given
// selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, exists := doc.Find(sel).Attr("content"); exists && content != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

// blockedHostnames are hosts that must never be fetched, regardless of what
// they resolve to.
var blockedHostnames = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
	"169.254.169.254":          {},
}

// validateURLScheme rejects URLs that could reach internal infrastructure:
// only http/https schemes, no blocked hostnames, no private or loopback IP
// hosts.
func validateURLScheme(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("invalid URL: no host")
	}
	if _, blocked := blockedHostnames[host]; blocked {
		return fmt.Errorf("blocked hostname %q", host)
	}

	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("blocked hostname %q", host)
	}
	return nil
}

// isPrivateIP reports whether ip belongs to a loopback, link-local, or
// RFC 1918 / ULA range.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
