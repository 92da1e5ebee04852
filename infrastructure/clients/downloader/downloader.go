package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"reelpipe/infrastructure/configuration"
	"reelpipe/infrastructure/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-querystring/query"
)

type resolveForm struct {
	ID     string `url:"id"`
	Locale string `url:"locale"`
	TT     string `url:"tt,omitempty"`
}

// Downloader resolves source links through a third-party resolver page and
// streams the media it points at.
type Downloader struct {
	resolverURL string
	selector    string
	userAgent   string
	http        *http.Client
	media       *http.Client
}

func New(cfg configuration.Downloader) *Downloader {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	downloadTimeout := time.Duration(cfg.DownloadTimeoutSeconds) * time.Second
	if downloadTimeout <= 0 {
		downloadTimeout = 5 * time.Minute
	}
	return &Downloader{
		resolverURL: cfg.ResolverURL,
		selector:    cfg.LinkSelector,
		userAgent:   cfg.UserAgent,
		http:        &http.Client{Timeout: timeout},
		media:       &http.Client{Timeout: downloadTimeout},
	}
}

// ResolveDownloadURL returns "" and no error when the resolver page carries
// no media link.
func (d *Downloader) ResolveDownloadURL(ctx context.Context, sourceLink string) (string, error) {
	values, err := query.Values(resolveForm{ID: sourceLink, Locale: "en"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.resolverURL, strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", sourceLink, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve %s: unexpected status %d", sourceLink, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", sourceLink, err)
	}
	href, ok := doc.Find(d.selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("resolve %s: bad media link: %w", sourceLink, err)
	}
	base, err := url.Parse(d.resolverURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// FetchToFile streams mediaURL to path. A partially written file is removed.
func (d *Downloader) FetchToFile(ctx context.Context, mediaURL, path string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.media.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if n == 0 {
		return errors.New("download: empty body")
	}
	logger.GetLogger().WithField("bytes", n).WithField("path", path).Debug("Media downloaded")
	return nil
}
