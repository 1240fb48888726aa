package types

// LogConf contains logging specific configuration
type LogConf struct {
	Level   string `ini:"level"`
	NoColor bool   `ini:"no_color"`
}

// PoolConf 控制发现流程：并发度、保留数量、全局超时和排除的国家。
type PoolConf struct {
	TopN                    int      `ini:"top_n"`
	Concurrency             int      `ini:"concurrency"`
	MaxCandidates           int      `ini:"max_candidates"` // 0 表示不限制
	DiscoveryTimeoutSeconds int      `ini:"discovery_timeout_seconds"`
	ExcludedCountries       []string `ini:"excluded_countries" delim:","`
	StateFile               string   `ini:"state_file"` // 为空时使用可执行文件所在目录下的 proxy.json
	GeoLookup               bool     `ini:"geo_lookup"` // 为没有国家信息的代理查询地理位置
	GeoAPIURL               string   `ini:"geo_api_url"`
}

// BenchmarkConf 描述参考下载以及提前放弃的阈值。
type BenchmarkConf struct {
	URL                   string `ini:"url"`
	ChunkSize             int    `ini:"chunk_size"`
	AttemptTimeoutSeconds int    `ini:"attempt_timeout_seconds"`
	MaxDurationSeconds    int    `ini:"max_duration_seconds"`
	MinThroughput         int64  `ini:"min_throughput"` // bytes per second
	ProgressCells         int    `ini:"progress_cells"`
	AbortAfterCells       int    `ini:"abort_after_cells"`
}

// SourcesConf 列出启用的代理源以及可覆盖的源地址。
type SourcesConf struct {
	Enabled        []string `ini:"enabled" delim:","`
	SandVPNURL     string   `ini:"sandvpn_url"`
	OnWorksURL     string   `ini:"onworks_url"`
	OnWorksPlan    string   `ini:"onworks_plan"`
	VNNetURL       string   `ini:"vnnet_url"`
	FreeProxyURL   string   `ini:"free_proxy_list_url"`
	SocksListURL   string   `ini:"socks_list_url"`
	RequestTimeout int      `ini:"request_timeout_seconds"` // 0 表示使用各源的默认值
}

// YtdlpConf 包含外部下载工具的配置
type YtdlpConf struct {
	Binary      string `ini:"binary"`
	MaxAttempts int    `ini:"max_attempts"`
}

// EventsConf 控制 websocket 事件推送，Listen 为空时禁用。
type EventsConf struct {
	Listen string `ini:"listen"`
}

// Config 是项目的统一配置结构体
type Config struct {
	LogConf       `ini:"log"`
	PoolConf      `ini:"pool"`
	BenchmarkConf `ini:"benchmark"`
	SourcesConf   `ini:"sources"`
	YtdlpConf     `ini:"ytdlp"`
	EventsConf    `ini:"events"`
}

// DefaultConfig 返回未加载配置文件时使用的默认值。
func DefaultConfig() *Config {
	return &Config{
		LogConf: LogConf{Level: "info"},
		PoolConf: PoolConf{
			TopN:                    5,
			Concurrency:             2,
			DiscoveryTimeoutSeconds: 600,
			ExcludedCountries:       []string{"Russia"},
		},
		BenchmarkConf: BenchmarkConf{
			URL:                   "http://212.183.159.230/5MB.zip",
			ChunkSize:             1024,
			AttemptTimeoutSeconds: 5,
			MaxDurationSeconds:    120,
			MinThroughput:         100000,
			ProgressCells:         30,
			AbortAfterCells:       3,
		},
		SourcesConf: SourcesConf{
			Enabled:     []string{"sandvpn", "onworks", "vnnet", "free-proxy-list"},
			OnWorksPlan: "10501",
		},
		YtdlpConf: YtdlpConf{
			Binary:      "yt-dlp",
			MaxAttempts: 3,
		},
	}
}
