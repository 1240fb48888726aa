package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/model"
)

const (
	SandVPNName       = "sandvpn"
	sandVPNDefaultURL = "https://api.sandvpn.com/fetch-free-proxys"
)

// sandVPNProxy 是 SandVPN 接口返回的单条记录，字段与 ProxyRecord 基本一致。
type sandVPNProxy struct {
	Host     string     `json:"host"`
	Port     model.Port `json:"port"`
	Username string     `json:"username"`
	Password string     `json:"password"`
	Country  string     `json:"country"`
	City     string     `json:"city"`
}

// SandVPNScraper 获取 SandVPN 浏览器扩展使用的免费代理列表。
type SandVPNScraper struct {
	url    string
	client *http.Client
}

// NewSandVPNScraper 创建一个新的 SandVPNScraper 实例。
func NewSandVPNScraper(opts Options) Scraper {
	return &SandVPNScraper{
		url:    opts.urlOr(sandVPNDefaultURL),
		client: newClient(opts.timeoutOr(10 * time.Second)),
	}
}

func (s *SandVPNScraper) Name() string {
	return SandVPNName
}

func (s *SandVPNScraper) Scrape(ctx context.Context) ([]*model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("url", s.url).Msg("Starting fetch...")

	var raw []*sandVPNProxy
	if err := fetchJSON(ctx, s.client, s.Name(), s.url, &raw); err != nil {
		return nil, err
	}

	proxies := make([]*model.ProxyRecord, 0, len(raw))
	for i, p := range raw {
		if p == nil {
			return nil, fmt.Errorf("%s: entry %d is null", s.Name(), i)
		}
		city := strings.TrimSpace(p.City)
		if city == "" {
			city = model.UnknownCity
		}
		proxies = append(proxies, &model.ProxyRecord{
			Host:     strings.TrimSpace(p.Host),
			Port:     p.Port,
			Username: p.Username,
			Password: p.Password,
			Country:  strings.TrimSpace(p.Country),
			City:     city,
			Protocol: model.ProtocolHTTP,
			Source:   s.Name(),
		})
	}

	l.Debug().Int("count", len(proxies)).Str("source", s.Name()).Msg("Fetch finished.")
	return proxies, nil
}
