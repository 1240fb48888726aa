package runner

import (
	"regexp"
)

// Outcome 是对一次下载工具运行结果的分类。
type Outcome int

const (
	// Success: the tool exited with status 0.
	Success Outcome = iota
	// Retry: the failure looks proxy related; try again through another proxy.
	Retry
	// Fatal: retrying through a different proxy will not help.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Signature 把输出中的一段特征映射到一个 Outcome。
type Signature struct {
	Pattern *regexp.Regexp
	Outcome Outcome
	Reason  string
}

// DefaultSignatures 按顺序匹配，第一个命中的生效。
// 明确的致命错误排在前面，以免被更宽泛的网络错误特征抢先匹配。
var DefaultSignatures = []Signature{
	{regexp.MustCompile(`(?i)Unsupported URL`), Fatal, "unsupported url"},
	{regexp.MustCompile(`(?i)is not a valid URL`), Fatal, "invalid url"},
	{regexp.MustCompile(`(?i)(no such option|requires an argument|error: unrecognized arguments)`), Fatal, "usage error"},
	{regexp.MustCompile(`(?i)(Private video|Video unavailable|This video has been removed)`), Fatal, "video unavailable"},

	{regexp.MustCompile(`(?i)(Unable to connect to proxy|ProxyError|Tunnel connection failed|Cannot connect to proxy)`), Retry, "proxy unreachable"},
	{regexp.MustCompile(`(?i)HTTP Error 407`), Retry, "proxy authentication rejected"},
	{regexp.MustCompile(`(?i)HTTP Error (403|429)`), Retry, "blocked by remote"},
	{regexp.MustCompile(`(?i)Sign in to confirm you.re not a bot`), Retry, "bot check"},
	{regexp.MustCompile(`(?i)(timed out|Read timed out|TimeoutError)`), Retry, "timeout"},
	{regexp.MustCompile(`(?i)(Connection refused|Connection reset|Remote end closed connection|RemoteDisconnected)`), Retry, "connection dropped"},
	{regexp.MustCompile(`(?i)(SSL: WRONG_VERSION_NUMBER|CERTIFICATE_VERIFY_FAILED|EOF occurred in violation of protocol)`), Retry, "tls failure through proxy"},
	{regexp.MustCompile(`(?i)(IncompleteRead|bytes read, \d+ more expected)`), Retry, "truncated download"},
	{regexp.MustCompile(`(?i)Unable to download (webpage|API page|video data)`), Retry, "download failed"},
}

// Classifier 根据退出码和合并后的输出判断是否需要换代理重试。
type Classifier struct {
	signatures []Signature
}

// NewClassifier 使用给定的特征表创建 Classifier，nil 表示使用 DefaultSignatures。
func NewClassifier(signatures []Signature) *Classifier {
	if signatures == nil {
		signatures = DefaultSignatures
	}
	return &Classifier{signatures: signatures}
}

// Classify returns the outcome of a run and a short reason.
// Exit status 0 is always Success; an unrecognised failure is Fatal.
func (c *Classifier) Classify(exitCode int, output string) (Outcome, string) {
	if exitCode == 0 {
		return Success, ""
	}
	for _, sig := range c.signatures {
		if sig.Pattern.MatchString(output) {
			return sig.Outcome, sig.Reason
		}
	}
	return Fatal, "unrecognised failure"
}
