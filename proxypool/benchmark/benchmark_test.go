package benchmark

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdlp_proxy/internal/shared/config"
	"ytdlp_proxy/proxypool/model"
)

const (
	testSize  = 32 * 1024
	targetURL = "http://reference.invalid/5MB.zip"
)

func testConfig() Config {
	return Config{
		URL:             targetURL,
		ExpectedSize:    testSize,
		ChunkSize:       1024,
		AttemptTimeout:  time.Second,
		MaxDuration:     10 * time.Second,
		MinThroughput:   100000,
		ProgressCells:   30,
		AbortAfterCells: 3,
	}
}

// startProxy runs an HTTP server that plays both the proxy and the reference
// host: a client configured with it as proxy sends it absolute-URL requests.
func startProxy(t *testing.T, h http.HandlerFunc) *model.ProxyRecord {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	return &model.ProxyRecord{Host: host, Port: model.Port(port), Country: "US", City: "Unknown"}
}

func payloadHandler(declared string, size int, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if declared != "" {
			w.Header().Set("Content-Length", declared)
		}
		w.WriteHeader(http.StatusOK)
		chunk := make([]byte, 1024)
		flusher, _ := w.(http.Flusher)
		for written := 0; written < size; written += len(chunk) {
			n := len(chunk)
			if size-written < n {
				n = size - written
			}
			if _, err := w.Write(chunk[:n]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-r.Context().Done():
					return
				}
			}
		}
	}
}

func TestBenchmark_Success(t *testing.T) {
	rec := startProxy(t, payloadHandler(strconv.Itoa(testSize), testSize, 0))

	res := New(testConfig(), nil).Benchmark(context.Background(), rec)
	require.NotNil(t, res)
	assert.False(t, res.Rejected())
	assert.GreaterOrEqual(t, res.Time, 0.0)
	assert.Equal(t, rec.Host, res.Host)
	assert.Equal(t, rec.Port, res.Port)
	assert.Equal(t, "US", res.Country)
}

func TestBenchmark_DeclaredLengthMismatch(t *testing.T) {
	rec := startProxy(t, payloadHandler("12345", 12345, 0))
	assert.Nil(t, New(testConfig(), nil).Benchmark(context.Background(), rec))
}

func TestBenchmark_DefaultSizeRejectsOtherLengths(t *testing.T) {
	rec := startProxy(t, payloadHandler("12345", 12345, 0))
	cfg := testConfig()
	cfg.ExpectedSize = 0 // defaults to 5 MiB
	assert.Nil(t, New(cfg, nil).Benchmark(context.Background(), rec))
}

func TestConfig_ZeroValueDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, int64(ExpectedPayloadSize), cfg.ExpectedSize)
	assert.Equal(t, 3, cfg.AbortAfterCells)
	assert.Equal(t, 30, cfg.ProgressCells)
	assert.Equal(t, 5*time.Second, cfg.AttemptTimeout)
}

func TestConfigFromTypes_PayloadSizeIsFixed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytdlp-proxy.ini")
	content := "[benchmark]\nexpected_size = 1000\nabort_after_cells = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	iniCfg, err := config.LoadIni(path)
	require.NoError(t, err)
	cfg := ConfigFromTypes(iniCfg.BenchmarkConf)
	cfg.applyDefaults()

	assert.Equal(t, int64(ExpectedPayloadSize), cfg.ExpectedSize)
	assert.Equal(t, 5, cfg.AbortAfterCells)
}

func TestBenchmark_MissingLength(t *testing.T) {
	t.Run("matching body", func(t *testing.T) {
		rec := startProxy(t, payloadHandler("", testSize, 0))
		res := New(testConfig(), nil).Benchmark(context.Background(), rec)
		require.NotNil(t, res)
		assert.False(t, math.IsInf(res.Time, 1))
	})
	t.Run("short body", func(t *testing.T) {
		rec := startProxy(t, payloadHandler("", testSize/2, 0))
		assert.Nil(t, New(testConfig(), nil).Benchmark(context.Background(), rec))
	})
	t.Run("long body", func(t *testing.T) {
		rec := startProxy(t, payloadHandler("", testSize*2, 0))
		assert.Nil(t, New(testConfig(), nil).Benchmark(context.Background(), rec))
	})
}

func TestBenchmark_SlowProxyIsRejected(t *testing.T) {
	// ~50 KB/s, below the 100 KB/s floor.
	rec := startProxy(t, payloadHandler(strconv.Itoa(testSize), testSize, 20*time.Millisecond))

	res := New(testConfig(), nil).Benchmark(context.Background(), rec)
	require.NotNil(t, res)
	assert.True(t, res.Rejected())
	assert.True(t, math.IsInf(res.Time, 1))
}

func TestBenchmark_Non2xx(t *testing.T) {
	rec := startProxy(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy authentication required", http.StatusProxyAuthRequired)
	})
	assert.Nil(t, New(testConfig(), nil).Benchmark(context.Background(), rec))
}

func TestBenchmark_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	rec := &model.ProxyRecord{Host: "127.0.0.1", Port: model.Port(strconv.Itoa(addr.Port))}
	assert.Nil(t, New(testConfig(), nil).Benchmark(context.Background(), rec))
}

func TestBenchmark_StalledReadTimesOut(t *testing.T) {
	rec := startProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(testSize))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	cfg := testConfig()
	cfg.AttemptTimeout = 200 * time.Millisecond

	start := time.Now()
	assert.Nil(t, New(cfg, nil).Benchmark(context.Background(), rec))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBenchmark_InvalidPortOrProtocol(t *testing.T) {
	b := New(testConfig(), nil)
	assert.Nil(t, b.Benchmark(context.Background(), &model.ProxyRecord{Host: "127.0.0.1", Port: "abc"}))
	assert.Nil(t, b.Benchmark(context.Background(), &model.ProxyRecord{Host: "127.0.0.1", Port: "80", Protocol: "gopher"}))
}

func TestBenchmark_ReportsProgress(t *testing.T) {
	rec := startProxy(t, payloadHandler(strconv.Itoa(testSize), testSize, 0))

	var (
		mu     sync.Mutex
		events []model.Progress
	)
	b := New(testConfig(), func(_ context.Context, p model.Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	})
	require.NotNil(t, b.Benchmark(context.Background(), rec))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), 30)
	last := events[len(events)-1]
	assert.Equal(t, int64(testSize), last.Downloaded)
	assert.Equal(t, int64(testSize), last.Total)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Downloaded, events[i-1].Downloaded)
	}
}

func TestClientFor_SOCKS5(t *testing.T) {
	b := New(testConfig(), nil)
	client, err := b.clientFor(&model.ProxyRecord{Host: "127.0.0.1", Port: "1080", Protocol: model.ProtocolSOCKS5, Username: "u", Password: "p"})
	require.NoError(t, err)
	tr := client.Transport.(*http.Transport)
	assert.Nil(t, tr.Proxy, "SOCKS5 proxies dial directly instead of using Transport.Proxy")
	assert.NotNil(t, tr.DialContext)

	client, err = b.clientFor(&model.ProxyRecord{Host: "127.0.0.1", Port: "8080"})
	require.NoError(t, err)
	assert.NotNil(t, client.Transport.(*http.Transport).Proxy)
}
