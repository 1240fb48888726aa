package scraper

import (
	"bufio"
	"bytes"
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
	SocksListName       = "thespeedx-socks5"
	socksListDefaultURL = "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt"
)

// TextListScraper 读取每行一个 host:port 的纯文本代理列表。
// 这类列表不提供地区信息，Country 留空，由 geo.Locator 补全。
type TextListScraper struct {
	name     string
	url      string
	protocol string
	client   *http.Client
}

// NewTextListScraper returns a Factory for a plain-text list with the given
// name and protocol.
func NewTextListScraper(name, defaultURL, protocol string) Factory {
	return func(opts Options) Scraper {
		p := opts.Protocol
		if p == "" {
			p = protocol
		}
		return &TextListScraper{
			name:     name,
			url:      opts.urlOr(defaultURL),
			protocol: p,
			client:   newClient(opts.timeoutOr(20 * time.Second)),
		}
	}
}

func (s *TextListScraper) Name() string {
	return s.name
}

func (s *TextListScraper) Scrape(ctx context.Context) ([]*model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("url", s.url).Msg("Starting fetch...")

	body, err := fetchBody(ctx, s.client, s.Name(), s.url)
	if err != nil {
		return nil, err
	}

	var (
		proxies []*model.ProxyRecord
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "://"); i >= 0 {
			line = line[i+3:]
		}
		host, port, err := net.SplitHostPort(line)
		if err != nil || host == "" {
			skipped++
			continue
		}
		if _, err := model.Port(port).Int(); err != nil {
			skipped++
			continue
		}
		proxies = append(proxies, &model.ProxyRecord{
			Host:     host,
			Port:     model.Port(port),
			City:     model.UnknownCity,
			Protocol: s.protocol,
			Source:   s.Name(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list from %s: %w", s.Name(), err)
	}
	if len(proxies) == 0 && skipped > 0 {
		return nil, fmt.Errorf("%s: no line matched host:port (%d malformed)", s.Name(), skipped)
	}

	l.Debug().Int("count", len(proxies)).Int("skipped", skipped).Str("source", s.Name()).Msg("Fetch finished.")
	return proxies, nil
}
