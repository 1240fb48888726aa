package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/internal/shared/types"
	"ytdlp_proxy/proxypool/filter"
	"ytdlp_proxy/proxypool/model"
	"ytdlp_proxy/proxypool/scraper"
	"ytdlp_proxy/proxypool/storage"
)

var (
	// ErrNoCandidates 表示所有代理源都没有返回有效代理。
	ErrNoCandidates = errors.New("no valid proxy candidates found")
	// ErrNoUsableProxy 表示候选代理全部测速失败。
	ErrNoUsableProxy = errors.New("no usable proxy found")
)

// Benchmarker 对单个代理测速，无法得到确定结果时返回 nil。
type Benchmarker interface {
	Benchmark(ctx context.Context, r *model.ProxyRecord) *model.BenchmarkResult
}

// Locator 补全缺少国家信息的代理，返回补全的数量。
type Locator interface {
	Locate(ctx context.Context, records []*model.ProxyRecord) int
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	OnEvent(ev model.Event)
}

// Options 控制一次发现流程。
type Options struct {
	TopN              int
	Concurrency       int
	MaxCandidates     int // 0 表示不限制
	DiscoveryTimeout  time.Duration
	ExcludedCountries []string
}

// OptionsFromConfig converts the [pool] section into Options.
func OptionsFromConfig(cfg types.PoolConf) Options {
	return Options{
		TopN:              cfg.TopN,
		Concurrency:       cfg.Concurrency,
		MaxCandidates:     cfg.MaxCandidates,
		DiscoveryTimeout:  time.Duration(cfg.DiscoveryTimeoutSeconds) * time.Second,
		ExcludedCountries: cfg.ExcludedCountries,
	}
}

// Manager 是代理发现流程的总控制器：抓取 -> 过滤 -> 测速 -> 排序 -> 存储。
type Manager struct {
	opts        Options
	storage     storage.Storage
	scrapers    []scraper.Scraper
	benchmarker Benchmarker
	locator     Locator
	observer    Observer
}

// NewManager 创建并初始化管理器。
func NewManager(opts Options, st storage.Storage, scrapers []scraper.Scraper, b Benchmarker) *Manager {
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &Manager{
		opts:        opts,
		storage:     st,
		scrapers:    scrapers,
		benchmarker: b,
	}
}

// SetObserver 设置事件接收者，nil 表示不发送事件。
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// SetLocator enables geo lookup for records that arrive without a country,
// so the country exclusion also applies to them.
func (m *Manager) SetLocator(lc Locator) {
	m.locator = lc
}

// Update 重新计算最佳代理列表并保存。失败时不会覆盖已保存的列表。
func (m *Manager) Update(ctx context.Context) (model.RankedList, error) {
	list, err := m.GetBestProxies(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.storage.Save(list); err != nil {
		return nil, fmt.Errorf("failed to save proxies: %w", err)
	}
	return list, nil
}

// GetBestProxies runs one full discovery cycle and returns at most TopN
// proxies in ascending order of download time.
func (m *Manager) GetBestProxies(ctx context.Context) (model.RankedList, error) {
	runID := uuid.New().String()
	ctx = withRunID(ctx, runID)
	l := logger.WithComponent("ProxyPool/Manager").With().Str("run_id", runID).Logger()
	l.Info().Int("sources", len(m.scrapers)).Msg("Starting proxy discovery...")
	m.emit(runID, model.EventRunStarted, nil)

	runCtx := ctx
	if m.opts.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.opts.DiscoveryTimeout)
		defer cancel()
	}

	candidates := m.collectCandidates(runCtx, runID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		m.finish(runID, model.RunSummary{Error: ErrNoCandidates.Error()})
		l.Warn().Msg("No valid candidates after filtering.")
		return nil, ErrNoCandidates
	}

	l.Info().Int("count", len(candidates)).Int("concurrency", m.opts.Concurrency).Msg("Benchmarking candidates...")
	results := m.benchmarkAll(runCtx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runCtx.Err() != nil {
		l.Warn().Dur("timeout", m.opts.DiscoveryTimeout).Int("measured", len(results)).Msg("Discovery deadline reached, ranking partial results.")
	}

	ranked := Rank(results, m.opts.TopN)
	summary := model.RunSummary{Candidates: len(candidates), Measured: len(results), Selected: len(ranked)}
	if len(ranked) == 0 {
		summary.Error = ErrNoUsableProxy.Error()
		m.finish(runID, summary)
		l.Warn().Int("candidates", len(candidates)).Msg("No candidate passed the benchmark.")
		return nil, ErrNoUsableProxy
	}

	m.finish(runID, summary)
	l.Info().Int("selected", len(ranked)).Float64("best_seconds", ranked[0].Time).Str("best", ranked[0].String()).Msg("Proxy discovery finished.")
	return ranked, nil
}

// collectCandidates 依次调用每个代理源。单个源失败只记录日志并跳过。
func (m *Manager) collectCandidates(ctx context.Context, runID string) []*model.ProxyRecord {
	l := logger.WithComponent("ProxyPool/Manager").With().Str("run_id", runID).Logger()

	candidates := make([]*model.ProxyRecord, 0)
	seen := make(map[string]bool)
	for _, s := range m.scrapers {
		if ctx.Err() != nil {
			break
		}
		proxies, err := s.Scrape(ctx)
		if err != nil {
			l.Warn().Err(err).Str("source", s.Name()).Msg("Source failed, skipping.")
			m.emit(runID, model.EventSourceFailed, model.SourceStatus{Source: s.Name(), Error: err.Error()})
			continue
		}

		if m.locator != nil {
			m.locator.Locate(ctx, proxies)
		}
		valid := filter.Filter(proxies, m.opts.ExcludedCountries...)
		added := 0
		for _, p := range valid {
			key := p.Scheme() + "://" + p.ProxyString()
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, p)
			added++
		}
		l.Info().Str("source", s.Name()).Int("fetched", len(proxies)).Int("valid", added).Msg("Source fetched.")
		m.emit(runID, model.EventSourceFetched, model.SourceStatus{Source: s.Name(), Count: len(proxies), Valid: added})
	}

	if m.opts.MaxCandidates > 0 && len(candidates) > m.opts.MaxCandidates {
		l.Info().Int("total", len(candidates)).Int("max", m.opts.MaxCandidates).Msg("Truncating candidate pool.")
		candidates = candidates[:m.opts.MaxCandidates]
	}
	return candidates
}

// benchmarkAll 在有界并发的 worker 池中测速所有候选代理，按完成顺序收集结果。
// 候选切片在此期间只读，结果只由当前 goroutine 写入。
func (m *Manager) benchmarkAll(ctx context.Context, candidates []*model.ProxyRecord) []*model.BenchmarkResult {
	runID := RunIDFromContext(ctx)
	resultsChan := make(chan *model.BenchmarkResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	go func() {
		for _, c := range candidates {
			if gctx.Err() != nil {
				break
			}
			candidate := c
			g.Go(func() error {
				res := m.benchmarker.Benchmark(gctx, candidate)
				m.emit(runID, model.EventBenchmarkFinished, outcomeOf(candidate, res))
				resultsChan <- res
				return nil
			})
		}
		_ = g.Wait()
		close(resultsChan)
	}()

	results := make([]*model.BenchmarkResult, 0, len(candidates))
	for res := range resultsChan {
		if res != nil {
			results = append(results, res)
		}
	}
	return results
}

// Rank sorts results ascending by time, drops rejected (infinite) ones and
// keeps at most topN. The input slice is not modified.
func Rank(results []*model.BenchmarkResult, topN int) model.RankedList {
	ranked := make(model.RankedList, 0, len(results))
	for _, r := range results {
		if r == nil || math.IsNaN(r.Time) || math.IsInf(r.Time, 0) {
			continue
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Time < ranked[j].Time
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func outcomeOf(r *model.ProxyRecord, res *model.BenchmarkResult) model.BenchmarkOutcome {
	out := model.BenchmarkOutcome{Proxy: r.String()}
	switch {
	case res == nil:
	case res.Rejected():
		out.Rejected = true
	default:
		out.Accepted = true
		out.Time = res.Time
	}
	return out
}

func (m *Manager) finish(runID string, summary model.RunSummary) {
	m.emit(runID, model.EventRunFinished, summary)
}

func (m *Manager) emit(runID string, t model.EventType, data interface{}) {
	if m.observer == nil {
		return
	}
	m.observer.OnEvent(model.Event{Type: t, RunID: runID, Time: time.Now().UTC(), Data: data})
}
