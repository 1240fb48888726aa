package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	ProtocolHTTP   = "http"
	ProtocolSOCKS5 = "socks5"

	// UnknownCity 是源未提供城市时的默认值。
	UnknownCity = "Unknown"
	// UnknownCountry marks a record whose source did not report a country.
	UnknownCountry = "Unknown"
)

// Port 在不同代理源中可能是字符串也可能是数字，统一保存为字符串。
type Port string

// UnmarshalJSON accepts both "8080" and 8080.
func (p *Port) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Port(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port must be a string or a number: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("port must be an integer: %w", err)
	}
	*p = Port(n.String())
	return nil
}

// Int returns the numeric port, or an error when the value is not a valid TCP port.
func (p Port) Int() (int, error) {
	n, err := strconv.Atoi(string(p))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", string(p), err)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}

// ProxyRecord 是一个候选代理，所有代理源都被规范化为这个结构。
type ProxyRecord struct {
	Host     string `json:"host"`
	Port     Port   `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Country  string `json:"country"`
	City     string `json:"city"`

	// Protocol 为 "http"（默认）或 "socks5"。
	Protocol string `json:"protocol,omitempty"`
	// Source 是提供该代理的源名称，仅用于日志和展示。
	Source string `json:"source,omitempty"`
}

// Address returns host:port.
func (r *ProxyRecord) Address() string {
	return net.JoinHostPort(r.Host, string(r.Port))
}

// ProxyString 构造 user:pass@host:port 或 host:port 形式，
// 仅当 username 非空时才带上认证信息。
func (r *ProxyRecord) ProxyString() string {
	if r.Username != "" {
		return r.Username + ":" + r.Password + "@" + r.Address()
	}
	return r.Address()
}

// ProxyURL returns the proxy as a URL with its scheme, suitable for
// http.ProxyURL or a --proxy command line flag.
func (r *ProxyRecord) ProxyURL() *url.URL {
	u := &url.URL{
		Scheme: r.Scheme(),
		Host:   r.Address(),
	}
	if r.Username != "" {
		u.User = url.UserPassword(r.Username, r.Password)
	}
	return u
}

// Scheme 返回代理协议，未设置时视为 http。
func (r *ProxyRecord) Scheme() string {
	if r.Protocol == "" {
		return ProtocolHTTP
	}
	return r.Protocol
}

func (r *ProxyRecord) String() string {
	return r.Scheme() + "://" + r.Address()
}

// BenchmarkResult 是附带了测速时间的代理记录。Time 越小越好，
// 因吞吐过低被放弃的代理 Time 为 +Inf。
type BenchmarkResult struct {
	ProxyRecord
	Time float64 `json:"time"`
}

// Rejected reports whether the benchmark was abandoned as too slow.
func (r *BenchmarkResult) Rejected() bool {
	return math.IsInf(r.Time, 1)
}

// RankedList 是按 Time 升序排列的最佳代理，是唯一被持久化的状态。
type RankedList []*BenchmarkResult
