package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/internal/shared/types"
	"ytdlp_proxy/proxypool/model"
)

// ExpectedPayloadSize 是参考文件的精确大小 (5 MiB)。响应声明的长度与之不符时，
// 说明代理返回了别的内容（例如错误页），测速结果作废。
const ExpectedPayloadSize = 5242880

// Config 描述一次测速的参数。
type Config struct {
	URL string
	// ExpectedSize 为 0 时使用 ExpectedPayloadSize。配置文件不能修改它，
	// 只有测试会用更小的载荷覆盖。
	ExpectedSize   int64
	ChunkSize      int
	AttemptTimeout time.Duration // 连接、握手、响应头以及任意一次读取停顿的上限
	MaxDuration    time.Duration // 单个代理整个下载过程的上限
	MinThroughput  float64       // bytes per second
	ProgressCells  int
	// 进度超过 AbortAfterCells 格后，吞吐低于 MinThroughput 即放弃。
	AbortAfterCells int
}

// ConfigFromTypes converts the ini section into a Config. The payload size
// is always ExpectedPayloadSize.
func ConfigFromTypes(c types.BenchmarkConf) Config {
	return Config{
		URL:             c.URL,
		ChunkSize:       c.ChunkSize,
		AttemptTimeout:  time.Duration(c.AttemptTimeoutSeconds) * time.Second,
		MaxDuration:     time.Duration(c.MaxDurationSeconds) * time.Second,
		MinThroughput:   float64(c.MinThroughput),
		ProgressCells:   c.ProgressCells,
		AbortAfterCells: c.AbortAfterCells,
	}
}

func (c *Config) applyDefaults() {
	if c.ExpectedSize <= 0 {
		c.ExpectedSize = ExpectedPayloadSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1024
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 2 * time.Minute
	}
	if c.MinThroughput <= 0 {
		c.MinThroughput = 100000
	}
	if c.ProgressCells <= 0 {
		c.ProgressCells = 30
	}
	if c.AbortAfterCells <= 0 {
		c.AbortAfterCells = 3
	}
}

// ProgressFunc receives download progress once per completed cell.
type ProgressFunc func(ctx context.Context, p model.Progress)

// Benchmarker 通过代理下载固定大小的参考文件来衡量代理速度。
type Benchmarker struct {
	cfg        Config
	onProgress ProgressFunc
}

// New 创建一个 Benchmarker。onProgress 可以为 nil。
func New(cfg Config, onProgress ProgressFunc) *Benchmarker {
	cfg.applyDefaults()
	return &Benchmarker{cfg: cfg, onProgress: onProgress}
}

var (
	errSizeMismatch = errors.New("payload size mismatch")
	errTooSlow      = errors.New("throughput below threshold")
)

// Benchmark downloads the reference payload through r. It returns nil when no
// determinate, size-matched download was possible, and a result with
// Time == +Inf when the download was abandoned for being too slow.
func (b *Benchmarker) Benchmark(ctx context.Context, r *model.ProxyRecord) *model.BenchmarkResult {
	l := logger.WithComponent("ProxyPool/Benchmark")

	elapsed, err := b.download(ctx, r)
	switch {
	case errors.Is(err, errTooSlow):
		l.Debug().Str("proxy", r.String()).Msg("Proxy too slow, download abandoned.")
		return &model.BenchmarkResult{ProxyRecord: *r, Time: math.Inf(1)}
	case err != nil:
		l.Debug().Err(err).Str("proxy", r.String()).Msg("Benchmark failed.")
		return nil
	}

	seconds := math.Round(elapsed.Seconds()*100) / 100
	l.Debug().Str("proxy", r.String()).Float64("seconds", seconds).Msg("Benchmark finished.")
	return &model.BenchmarkResult{ProxyRecord: *r, Time: seconds}
}

func (b *Benchmarker) download(ctx context.Context, r *model.ProxyRecord) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.MaxDuration)
	defer cancel()

	client, err := b.clientFor(r)
	if err != nil {
		return 0, err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	// 任何阶段超过 AttemptTimeout 没有进展都会取消整个请求。
	stall := time.AfterFunc(b.cfg.AttemptTimeout, cancel)
	defer stall.Stop()

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	expected := b.cfg.ExpectedSize
	if resp.ContentLength >= 0 && resp.ContentLength != expected {
		return 0, fmt.Errorf("%w: declared %d, want %d", errSizeMismatch, resp.ContentLength, expected)
	}

	buf := make([]byte, b.cfg.ChunkSize)
	var downloaded int64
	lastCell := 0
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			stall.Reset(b.cfg.AttemptTimeout)
			downloaded += int64(n)
			if downloaded > expected {
				return 0, fmt.Errorf("%w: body exceeds %d bytes", errSizeMismatch, expected)
			}

			elapsed := time.Since(start).Seconds()
			throughput := float64(downloaded)
			if elapsed > 0 {
				throughput = float64(downloaded) / elapsed
			}
			cell := int(int64(b.cfg.ProgressCells) * downloaded / expected)
			if cell > b.cfg.AbortAfterCells && throughput < b.cfg.MinThroughput {
				return 0, errTooSlow
			}
			if cell != lastCell {
				lastCell = cell
				b.report(ctx, r, downloaded, throughput)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, readErr
		}
	}

	if downloaded != expected {
		return 0, fmt.Errorf("%w: received %d, want %d", errSizeMismatch, downloaded, expected)
	}
	return time.Since(start), nil
}

func (b *Benchmarker) report(ctx context.Context, r *model.ProxyRecord, downloaded int64, throughput float64) {
	if b.onProgress == nil {
		return
	}
	b.onProgress(ctx, model.Progress{
		Proxy:      r.String(),
		Downloaded: downloaded,
		Total:      b.cfg.ExpectedSize,
		Throughput: throughput,
	})
}

// clientFor 为单个代理构造一个独立的 http.Client：HTTP 代理走 CONNECT/绝对 URL，
// SOCKS5 代理通过 x/net/proxy 拨号。
func (b *Benchmarker) clientFor(r *model.ProxyRecord) (*http.Client, error) {
	if _, err := r.Port.Int(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   b.cfg.AttemptTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   b.cfg.AttemptTimeout,
		ResponseHeaderTimeout: b.cfg.AttemptTimeout,
		IdleConnTimeout:       b.cfg.AttemptTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		// 保证 ContentLength 与实际字节数对应，不被透明解压改变。
		DisableCompression: true,
		DisableKeepAlives:  true,
	}

	switch r.Scheme() {
	case model.ProtocolSOCKS5:
		var auth *proxy.Auth
		if r.Username != "" {
			auth = &proxy.Auth{User: r.Username, Password: r.Password}
		}
		socks, err := proxy.SOCKS5("tcp", r.Address(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	case model.ProtocolHTTP, "https":
		transport.Proxy = http.ProxyURL(r.ProxyURL())
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", r.Protocol)
	}

	return &http.Client{Transport: transport}, nil
}
