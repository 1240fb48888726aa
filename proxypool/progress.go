package manager

import (
	"context"
	"time"

	"ytdlp_proxy/proxypool/model"
)

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the discovery run id carried by ctx, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ProgressEvents 返回一个把测速进度转发给 Observer 的回调，
// 可直接传给 benchmark.New。
func ProgressEvents(o Observer) func(ctx context.Context, p model.Progress) {
	return func(ctx context.Context, p model.Progress) {
		if o == nil {
			return
		}
		o.OnEvent(model.Event{
			Type:  model.EventBenchmarkProgress,
			RunID: RunIDFromContext(ctx),
			Time:  time.Now().UTC(),
			Data:  p,
		})
	}
}
