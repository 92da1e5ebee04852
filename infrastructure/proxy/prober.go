package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"reelpipe/domain/model"
)

type ProbeResult struct {
	Endpoint   string
	ExternalIP string
	Latency    time.Duration
}

// Prober checks a proxy against IP echo endpoints, in order, stopping at
// the first one that answers 200.
type Prober struct {
	endpoints []string
	timeout   time.Duration
}

func NewProber(endpoints []string, timeout time.Duration) *Prober {
	return &Prober{endpoints: endpoints, timeout: timeout}
}

func (p *Prober) Probe(ctx context.Context, cfg *model.ProxyConfig) (*ProbeResult, error) {
	client, err := NewHTTPClient(cfg, p.timeout)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, endpoint := range p.endpoints {
		start := time.Now()
		ip, err := p.try(ctx, client, endpoint)
		if err == nil {
			return &ProbeResult{Endpoint: endpoint, ExternalIP: ip, Latency: time.Since(start)}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no echo endpoints configured")
	}
	return nil, errors.Join(errs...)
}

func (p *Prober) try(ctx context.Context, client *http.Client, endpoint string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	return ParseExternalIP(body), nil
}

// ParseExternalIP reads {"origin": ...} or {"ip": ...} JSON, or a bare IP
// in plain text. It returns "" when nothing recognizable is present.
func ParseExternalIP(body []byte) string {
	var payload struct {
		Origin string `json:"origin"`
		IP     string `json:"ip"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Origin != "" {
			return strings.TrimSpace(strings.Split(payload.Origin, ",")[0])
		}
		if payload.IP != "" {
			return payload.IP
		}
	}
	text := strings.TrimSpace(string(body))
	if net.ParseIP(text) != nil {
		return text
	}
	return ""
}
