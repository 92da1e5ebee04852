package dto

type ProxyCheckStatus string

const (
	ProxyCheckWorking  ProxyCheckStatus = "working"
	ProxyCheckFailed   ProxyCheckStatus = "failed"
	ProxyCheckDisabled ProxyCheckStatus = "disabled"
)

type ProxyCheckResult struct {
	Username   string           `json:"username"`
	ProxyHost  string           `json:"proxy_host"`
	ProxyPort  int              `json:"proxy_port"`
	ProxyType  string           `json:"proxy_type"`
	Status     ProxyCheckStatus `json:"status"`
	LatencyMs  int64            `json:"latency_ms,omitempty"`
	ExternalIP string           `json:"external_ip,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Message    string           `json:"message,omitempty"`
	CheckedAt  string           `json:"checked_at,omitempty"`
}

type ProxyCheckAllResponse struct {
	Results  []ProxyCheckResult `json:"results"`
	Total    int                `json:"total"`
	Working  int                `json:"working"`
	Failed   int                `json:"failed"`
	Disabled int                `json:"disabled"`
}

type ProxyStatistics struct {
	TotalAccountsWithProxy int            `json:"total_accounts_with_proxy"`
	ActiveProxies          int            `json:"active_proxies"`
	WorkingProxies         int            `json:"working_proxies"`
	FailedProxies          int            `json:"failed_proxies"`
	UncheckedProxies       int            `json:"unchecked_proxies"`
	ProxyTypes             map[string]int `json:"proxy_types"`
	HealthPercentage       float64        `json:"health_percentage"`
}

type AutoDisableResponse struct {
	Threshold int      `json:"threshold"`
	Disabled  []string `json:"disabled"`
}
