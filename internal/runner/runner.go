package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/exec"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/internal/shared/types"
	"ytdlp_proxy/proxypool/model"
	"ytdlp_proxy/proxypool/storage"
)

var (
	// ErrNoProxies 表示保存的列表为空。
	ErrNoProxies = errors.New("saved proxy list is empty, run update first")
	// ErrProxiesExhausted 表示每次尝试都因代理问题失败。
	ErrProxiesExhausted = errors.New("every attempted proxy failed")
)

// ExitError is returned when the download tool fails in a way that a
// different proxy would not fix.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("download tool exited with status %d (%s)", e.Code, e.Reason)
}

// CommandFunc 构造要执行的命令，测试中可替换。
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner 通过随机选取的已保存代理启动下载工具，并在遇到代理相关错误时换一个代理重试。
type Runner struct {
	binary      string
	maxAttempts int
	storage     storage.Storage
	classifier  *Classifier
	command     CommandFunc
	rng         *rand.Rand

	Stdin  io.Reader
	Output io.Writer
}

// New 创建一个 Runner。
func New(cfg types.YtdlpConf, st storage.Storage) *Runner {
	binary := cfg.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Runner{
		binary:      binary,
		maxAttempts: attempts,
		storage:     st,
		classifier:  NewClassifier(nil),
		command:     exec.CommandContext,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Stdin:       os.Stdin,
		Output:      os.Stdout,
	}
}

// Run launches the tool with args, injecting --proxy. Each retry uses a
// proxy that has not been tried yet.
func (r *Runner) Run(ctx context.Context, args []string) error {
	l := logger.WithComponent("Runner")

	list, err := r.storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load proxies: %w", err)
	}
	if len(list) == 0 {
		return ErrNoProxies
	}

	order := make(model.RankedList, len(list))
	copy(order, list)
	r.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	attempts := r.maxAttempts
	if attempts > len(order) {
		attempts = len(order)
	}

	for i := 0; i < attempts; i++ {
		p := order[i]
		l.Info().Str("proxy", p.String()).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Starting download tool.")

		exitCode, output, err := r.runOnce(ctx, p, args)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}

		outcome, reason := r.classifier.Classify(exitCode, output)
		switch outcome {
		case Success:
			return nil
		case Fatal:
			return &ExitError{Code: exitCode, Reason: reason}
		default:
			l.Warn().Str("proxy", p.String()).Str("reason", reason).Int("exit_code", exitCode).Msg("Proxy failure detected, retrying with another proxy.")
		}
	}
	return fmt.Errorf("%w (%d attempts)", ErrProxiesExhausted, attempts)
}

// runOnce 执行一次下载工具，输出同时写到终端和缓冲区。
func (r *Runner) runOnce(ctx context.Context, p *model.BenchmarkResult, args []string) (int, string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	cmdArgs = append(cmdArgs, "--proxy", p.ProxyURL().String())
	cmdArgs = append(cmdArgs, args...)

	var captured bytes.Buffer
	out := io.MultiWriter(r.Output, &captured)

	cmd := r.command(ctx, r.binary, cmdArgs...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, captured.String(), nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), captured.String(), nil
	default:
		return 0, "", fmt.Errorf("failed to start %s: %w", r.binary, err)
	}
}
