package proxy

import (
	"net/http"
	"time"

	"reelpipe/domain/model"
)

// NewHTTPClient builds a client that egresses through p, or directly when p
// is nil. http, https and socks5 proxies are supported.
func NewHTTPClient(p *model.ProxyConfig, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p != nil {
		u, err := p.URL()
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
