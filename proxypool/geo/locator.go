package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/model"
)

const (
	// DefaultBatchURL 是 ip-api.com 的批量查询接口。
	DefaultBatchURL = "http://ip-api.com/batch"
	defaultTimeout  = 5 * time.Second
	// ip-api 每次批量请求最多接受 100 个地址
	maxBatchSize = 100
)

type batchQuery struct {
	Query  string `json:"query"`
	Fields string `json:"fields"`
}

// geoAPIResponse defines the structure for one ip-api.com batch entry.
type geoAPIResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
	Query   string `json:"query"`
}

// Locator 为缺少国家信息的代理补全地理位置。
type Locator struct {
	apiURL    string
	batchSize int
	client    *http.Client
}

func NewLocator(apiURL string, timeout time.Duration) *Locator {
	if apiURL == "" {
		apiURL = DefaultBatchURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Locator{
		apiURL:    apiURL,
		batchSize: maxBatchSize,
		client:    &http.Client{Timeout: timeout},
	}
}

// Locate fills Country and City of every record whose country is empty or
// Unknown and
// returns how many were located. A failed batch is logged and stops the
// lookup; records it did not reach keep an empty country.
func (lc *Locator) Locate(ctx context.Context, records []*model.ProxyRecord) int {
	l := logger.WithComponent("ProxyPool/Geo")

	pending := make(map[string][]*model.ProxyRecord)
	hosts := make([]string, 0)
	for _, r := range records {
		if r == nil || r.Host == "" || !missingCountry(r.Country) {
			continue
		}
		if _, ok := pending[r.Host]; !ok {
			hosts = append(hosts, r.Host)
		}
		pending[r.Host] = append(pending[r.Host], r)
	}
	if len(hosts) == 0 {
		return 0
	}

	located := 0
	for start := 0; start < len(hosts); start += lc.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + lc.batchSize
		if end > len(hosts) {
			end = len(hosts)
		}
		answers, err := lc.lookup(ctx, hosts[start:end])
		if err != nil {
			l.Warn().Err(err).Int("hosts", len(hosts)-start).Msg("Geo lookup failed, leaving remaining proxies unlocated.")
			break
		}
		for _, a := range answers {
			if a.Status != "success" || a.Country == "" {
				continue
			}
			for _, r := range pending[a.Query] {
				r.Country = a.Country
				if a.City != "" {
					r.City = a.City
				}
				located++
			}
		}
	}
	l.Debug().Int("located", located).Int("hosts", len(hosts)).Msg("Geo lookup finished.")
	return located
}

func missingCountry(country string) bool {
	country = strings.TrimSpace(country)
	return country == "" || strings.EqualFold(country, model.UnknownCountry)
}

func (lc *Locator) lookup(ctx context.Context, hosts []string) ([]geoAPIResponse, error) {
	queries := make([]batchQuery, 0, len(hosts))
	for _, h := range hosts {
		queries = append(queries, batchQuery{Query: h, Fields: "status,country,city,query"})
	}
	body, err := json.Marshal(queries)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geo API returned status %d", resp.StatusCode)
	}

	var answers []geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&answers); err != nil {
		return nil, fmt.Errorf("failed to decode geo API response: %w", err)
	}
	return answers, nil
}
