package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// Completer 定义通用的 LLM 调用接口：{system, user} -> 自由文本
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrEmptyResponse 模型没有返回任何内容
var ErrEmptyResponse = errors.New("llm returned empty response")

// IsTransient 判断错误是否值得重试：超时、限流、服务端 5xx
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	// eino 与 langchaingo 只透出错误文本
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "too many requests", "timeout", "timed out", "502", "503", "504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
