package scraper

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ytdlp_proxy/internal/shared/types"
)

// Options 是创建代理源时可覆盖的参数，零值表示使用源自身的默认值。
type Options struct {
	URL      string
	Timeout  time.Duration
	Plan     string // 仅 onworks 使用
	Protocol string // 仅纯文本列表使用
}

func (o Options) urlOr(def string) string {
	if o.URL != "" {
		return o.URL
	}
	return def
}

func (o Options) timeoutOr(def time.Duration) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return def
}

// Factory 根据 Options 创建一个代理源。
type Factory func(opts Options) Scraper

// Registry maps provider names to factories. Providers are added with
// explicit Register calls; the aggregator only ever sees what was registered.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register 注册一个代理源，名称重复时返回错误。
func (r *Registry) Register(name string, f Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("scraper name must not be empty")
	}
	if f == nil {
		return fmt.Errorf("scraper %s: nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("scraper %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names 返回所有已注册的源名称（已排序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named provider.
func (r *Registry) Build(name string, opts Options) (Scraper, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown scraper %q (registered: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(opts), nil
}

// RegisterBuiltins 注册内置的代理源。
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name string
		f    Factory
	}{
		{SandVPNName, NewSandVPNScraper},
		{OnWorksName, NewOnWorksScraper},
		{VNNetName, NewVNNetScraper},
		{FreeProxyListName, NewFreeProxyListScraper},
		{SocksListName, NewTextListScraper(SocksListName, socksListDefaultURL, "socks5")},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.f); err != nil {
			return err
		}
	}
	return nil
}

// BuildEnabled builds every provider listed in cfg.Enabled, in order.
func BuildEnabled(r *Registry, cfg types.SourcesConf) ([]Scraper, error) {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	overrides := map[string]Options{
		SandVPNName:       {URL: cfg.SandVPNURL},
		OnWorksName:       {URL: cfg.OnWorksURL, Plan: cfg.OnWorksPlan},
		VNNetName:         {URL: cfg.VNNetURL},
		FreeProxyListName: {URL: cfg.FreeProxyURL},
		SocksListName:     {URL: cfg.SocksListURL},
	}

	scrapers := make([]Scraper, 0, len(cfg.Enabled))
	seen := make(map[string]bool, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		opts := overrides[name]
		opts.Timeout = timeout
		s, err := r.Build(name, opts)
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, s)
	}
	if len(scrapers) == 0 {
		return nil, fmt.Errorf("no proxy sources enabled")
	}
	return scrapers, nil
}
