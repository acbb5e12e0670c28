package node

import (
	"context"
	"errors"
	"net"
	"regexp"
	"slices"
	"strconv"
)

// transientPattern 网络/限流/上游过载的常见错误特征
var transientPattern = regexp.MustCompile(`(?i)timeout|ETIMEDOUT|ECONNRESET|ECONNREFUSED|ENOTFOUND|429|rate limit|overloaded|Service Unavailable|Gateway Timeout`)

var transientStatusCodes = []int{408, 409, 425, 429, 500, 502, 503, 504}

// StatusCoder 携带 HTTP 状态码的上游错误
type StatusCoder interface {
	StatusCode() int
}

// IsTransientLLMError 判断 LLM 调用错误是否为瞬时错误（可重试/降级/兜底）
func IsTransientLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) && slices.Contains(transientStatusCodes, sc.StatusCode()) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return transientPattern.MatchString(err.Error())
}

// StatusError 带状态码的错误，供适配器包装上游 HTTP 失败
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return "upstream status " + strconv.Itoa(e.Status)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Status }
