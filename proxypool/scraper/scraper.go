package scraper

import (
	"context"

	"ytdlp_proxy/proxypool/model"
)

// Scraper 接口定义了从代理目录获取代理信息的行为。
type Scraper interface {
	// Scrape 请求一次代理目录，并把源特有的响应格式规范化为 ProxyRecord。
	// 实现者只负责获取和解析，不做过滤和测速。响应格式不符时必须返回错误，
	// 而不是返回残缺的记录。
	Scrape(ctx context.Context) ([]*model.ProxyRecord, error)

	// Name 返回源的名称，用于日志记录。
	Name() string
}
