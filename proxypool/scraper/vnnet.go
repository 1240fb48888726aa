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
	VNNetName       = "vnnet"
	vnNetDefaultURL = "https://poteto.ru/servers.json"
)

// vnNetServer 是 VNNet 扩展 servers.json 中的单个服务器，name 字段即国家。
type vnNetServer struct {
	Name      string     `json:"name"`
	ProxyHost string     `json:"proxy_host"`
	ProxyPort model.Port `json:"proxy_port"`
	ProxyUser string     `json:"proxy_user"`
	ProxyPass string     `json:"proxy_pass"`
}

// VNNetScraper 获取 VNNet 浏览器扩展的服务器列表。
type VNNetScraper struct {
	url    string
	client *http.Client
}

// NewVNNetScraper 创建一个新的 VNNetScraper 实例。
func NewVNNetScraper(opts Options) Scraper {
	return &VNNetScraper{
		url:    opts.urlOr(vnNetDefaultURL),
		client: newClient(opts.timeoutOr(10 * time.Second)),
	}
}

func (s *VNNetScraper) Name() string {
	return VNNetName
}

func (s *VNNetScraper) Scrape(ctx context.Context) ([]*model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("url", s.url).Msg("Starting fetch...")

	var servers []*vnNetServer
	if err := fetchJSON(ctx, s.client, s.Name(), s.url, &servers); err != nil {
		return nil, err
	}

	proxies := make([]*model.ProxyRecord, 0, len(servers))
	for i, srv := range servers {
		if srv == nil {
			return nil, fmt.Errorf("%s: server entry %d is null", s.Name(), i)
		}
		proxies = append(proxies, &model.ProxyRecord{
			Host:     strings.TrimSpace(srv.ProxyHost),
			Port:     srv.ProxyPort,
			Username: srv.ProxyUser,
			Password: srv.ProxyPass,
			Country:  strings.TrimSpace(srv.Name),
			City:     model.UnknownCity,
			Protocol: model.ProtocolHTTP,
			Source:   s.Name(),
		})
	}

	l.Debug().Int("count", len(proxies)).Str("source", s.Name()).Msg("Fetch finished.")
	return proxies, nil
}
