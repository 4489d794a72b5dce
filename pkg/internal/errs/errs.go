// Package errs 定义导入流水线与同步协议共用的哨兵错误.
// 调用方用 fmt.Errorf("...: %w", errs.ErrX) 包装，用 errors.Is 判断.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrValidationFailed 输入路径无效、文件不可读或载荷不合法. 不重试.
	ErrValidationFailed = errors.New("validation failed")
	// ErrHashingFailed 读取过程中的 I/O 错误. 由上层（下一批同步）重试.
	ErrHashingFailed = errors.New("hashing failed")
	// ErrIdentifierExhausted 标识符前缀碰撞达到上限，意味着索引损坏.
	ErrIdentifierExhausted = errors.New("identifier space exhausted")
	// ErrVerificationFailed 写入后哈希不一致，坏副本已删除.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrNetworkFailed 推送或拉取的网络错误. 待同步队列保证不丢数据.
	ErrNetworkFailed = errors.New("network failed")
	// ErrConflictRejected 推送的修改不比服务端新，未应用.
	ErrConflictRejected = errors.New("conflict rejected")
	// ErrNotFound 记录不存在.
	ErrNotFound = errors.New("not found")
)

// HTTPStatus 把错误映射为 HTTP 状态码.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflictRejected):
		return http.StatusConflict
	case errors.Is(err, ErrNetworkFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable 报告错误是否应在下一个周期重试.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetworkFailed) || errors.Is(err, ErrHashingFailed)
}
