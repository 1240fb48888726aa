package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/model"
)

const (
	FreeProxyListName       = "free-proxy-list"
	freeProxyListDefaultURL = "https://free-proxy-list.net/"

	// 表格列：IP Address | Port | Code | Country | Anonymity | Google | Https | Last Checked
	colIP      = 0
	colPort    = 1
	colCode    = 2
	colCountry = 3
	minColumns = 4
)

// FreeProxyListScraper 抓取 free-proxy-list.net 风格的 HTML 表格。
// sslproxies.org、us-proxy.org 使用相同的页面结构。
type FreeProxyListScraper struct {
	url     string
	timeout time.Duration
}

// NewFreeProxyListScraper 创建一个新的 FreeProxyListScraper 实例。
func NewFreeProxyListScraper(opts Options) Scraper {
	return &FreeProxyListScraper{
		url:     opts.urlOr(freeProxyListDefaultURL),
		timeout: opts.timeoutOr(20 * time.Second),
	}
}

func (s *FreeProxyListScraper) Name() string {
	return FreeProxyListName
}

func (s *FreeProxyListScraper) Scrape(ctx context.Context) ([]*model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("url", s.url).Msg("Starting scrape...")

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	var (
		proxies []*model.ProxyRecord
		rows    int
		mu      sync.Mutex
	)

	c.OnHTML("table.table tbody tr", func(e *colly.HTMLElement) {
		cells := rowCells(e.DOM)
		mu.Lock()
		defer mu.Unlock()
		rows++
		if len(cells) < minColumns {
			return
		}
		country := cells[colCountry]
		if country == "" {
			country = cells[colCode]
		}
		proxies = append(proxies, &model.ProxyRecord{
			Host:     cells[colIP],
			Port:     model.Port(cells[colPort]),
			Country:  country,
			City:     model.UnknownCity,
			Protocol: model.ProtocolHTTP,
			Source:   s.Name(),
		})
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		l.Warn().Err(err).Int("status_code", r.StatusCode).Str("source", s.Name()).Msg("Scrape request failed.")
		scrapeErr = err
	})

	if err := c.Visit(s.url); err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", s.Name(), err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", s.Name(), scrapeErr)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%s: proxy table not found in page", s.Name())
	}

	l.Debug().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}

// rowCells returns the trimmed text of every <td> in a table row.
func rowCells(row *goquery.Selection) []string {
	cells := make([]string, 0, 8)
	row.Find("td").Each(func(_ int, td *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(td.Text()))
	})
	return cells
}
