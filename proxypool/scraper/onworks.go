package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/model"
)

const (
	OnWorksName        = "onworks"
	onWorksDefaultURL  = "https://www.onworks.net/vpn.json?v=07"
	onWorksDefaultPlan = "10501"
)

// onWorksResponse 对应 VPNOnline 扩展的 vpn.json：按套餐 ID 分组，
// 每个套餐共享一组认证信息。
type onWorksResponse struct {
	Data *struct {
		Servers map[string]*onWorksPlan `json:"servers"`
	} `json:"data"`
}

type onWorksPlan struct {
	Proxies []*struct {
		Proxy   string `json:"proxy"` // "host:port"
		Country string `json:"country"`
	} `json:"proxies"`
	Credentials *struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"credentials"`
}

// OnWorksScraper 获取 VPNOnline (onworks.net) 的代理列表。
type OnWorksScraper struct {
	url    string
	plan   string
	client *http.Client
}

// NewOnWorksScraper 创建一个新的 OnWorksScraper 实例。
func NewOnWorksScraper(opts Options) Scraper {
	plan := opts.Plan
	if plan == "" {
		plan = onWorksDefaultPlan
	}
	return &OnWorksScraper{
		url:    opts.urlOr(onWorksDefaultURL),
		plan:   plan,
		client: newClient(opts.timeoutOr(5 * time.Second)),
	}
}

func (s *OnWorksScraper) Name() string {
	return OnWorksName
}

func (s *OnWorksScraper) Scrape(ctx context.Context) ([]*model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("url", s.url).Msg("Starting fetch...")

	var resp onWorksResponse
	if err := fetchJSON(ctx, s.client, s.Name(), s.url, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Servers == nil {
		return nil, fmt.Errorf("%s: response has no data.servers object", s.Name())
	}
	plan, ok := resp.Data.Servers[s.plan]
	if !ok || plan == nil {
		return nil, fmt.Errorf("%s: plan %s not found in response", s.Name(), s.plan)
	}

	var username, password string
	if plan.Credentials != nil {
		username = plan.Credentials.Username
		password = plan.Credentials.Password
	}

	proxies := make([]*model.ProxyRecord, 0, len(plan.Proxies))
	for i, p := range plan.Proxies {
		if p == nil {
			return nil, fmt.Errorf("%s: proxy entry %d is null", s.Name(), i)
		}
		host, port, err := net.SplitHostPort(strings.TrimSpace(p.Proxy))
		if err != nil {
			return nil, fmt.Errorf("%s: proxy entry %d has malformed address %q: %w", s.Name(), i, p.Proxy, err)
		}
		proxies = append(proxies, &model.ProxyRecord{
			Host:     host,
			Port:     model.Port(port),
			Username: username,
			Password: password,
			Country:  strings.ToUpper(strings.TrimSpace(p.Country)),
			City:     model.UnknownCity,
			Protocol: model.ProtocolHTTP,
			Source:   s.Name(),
		})
	}

	l.Debug().Int("count", len(proxies)).Str("source", s.Name()).Msg("Fetch finished.")
	return proxies, nil
}
