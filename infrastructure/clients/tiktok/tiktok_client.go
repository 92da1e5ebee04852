package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelpipe/infrastructure/configuration"
	"reelpipe/infrastructure/logger"

	"github.com/PuerkitoBio/goquery"
)

const videoLinkSelector = "a[href*='/video/']"

// Client scrapes public profile pages for recent video links.
type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
}

func NewClient(cfg configuration.TikTok) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid tiktok base url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: base, userAgent: cfg.UserAgent, http: &http.Client{Timeout: timeout}}, nil
}

// ListRecentVideos returns up to limit distinct video links from the
// account's profile page, in page order.
func (c *Client) ListRecentVideos(ctx context.Context, account string, limit int) ([]string, error) {
	account = strings.TrimPrefix(strings.TrimSpace(account), "@")
	if account == "" {
		return nil, fmt.Errorf("empty account name")
	}
	profile := c.baseURL.JoinPath("@" + account)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profile.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", account, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile %s: unexpected status %d", account, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", account, err)
	}

	links := make([]string, 0, limit)
	seen := make(map[string]struct{})
	doc.Find(videoLinkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(links) >= limit {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link, ok := c.normalize(href)
		if !ok {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return true
	})

	logger.GetLogger().WithField("account", account).WithField("count", len(links)).Debug("Profile scraped")
	return links, nil
}

// normalize resolves href against the base URL and strips query and fragment.
func (c *Client) normalize(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u = c.baseURL.ResolveReference(u)
	if !strings.Contains(u.Path, "/video/") {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), true
}
