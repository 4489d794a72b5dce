package field

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
	"github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/middleware"
)

const apiPrefix = "/api/v1"

// Transport 与权威库通信.
type Transport interface {
	Health(ctx context.Context) error
	Push(ctx context.Context, req *types.PushRequest) (*types.PushResponse, error)
	Pull(ctx context.Context, since int64, limit int) (*types.PullResponse, error)
}

// HTTPTransport 基于 net/http 的 Transport. 每个请求有独立超时，
// 连续的网络失败会打开熔断器，打开期间请求直接返回 ErrNetworkFailed.
type HTTPTransport struct {
	base     string
	device   string
	token    string
	compress bool
	timeout  time.Duration
	probe    time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPTransport 创建 HTTPTransport. client 为空时使用默认客户端.
func NewHTTPTransport(cfg configs.FieldConfig, deviceID string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = configs.DefaultFieldBreakerFailures
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "field-transport",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errs.ErrNetworkFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Logger().Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &HTTPTransport{
		base:     strings.TrimRight(cfg.ServerURL, "/"),
		device:   deviceID,
		token:    cfg.DeviceToken,
		compress: cfg.Compress,
		timeout:  cfg.RequestTimeout,
		probe:    cfg.ProbeTimeout,
		client:   client,
		breaker:  breaker,
	}
}

// Health 探测服务端是否可达.
func (t *HTTPTransport) Health(ctx context.Context) error {
	return t.do(ctx, t.probe, http.MethodGet, "/health", nil, nil)
}

// Push 推送一批实体.
func (t *HTTPTransport) Push(ctx context.Context, req *types.PushRequest) (*types.PushResponse, error) {
	var resp types.PushResponse
	if err := t.do(ctx, t.timeout, http.MethodPost, "/sync/push", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Pull 拉取水位线之后的一页实体.
func (t *HTTPTransport) Pull(ctx context.Context, since int64, limit int) (*types.PullResponse, error) {
	var resp types.PullResponse

	req := types.PullRequest{SinceTimestamp: since, Limit: limit}
	if err := t.do(ctx, t.timeout, http.MethodPost, "/sync/pull", &req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.roundTrip(ctx, timeout, method, path, in, out)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w: %w", method, path, errs.ErrNetworkFailed, err)
	}

	return err
}

func (t *HTTPTransport) roundTrip(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, gzipped, err := t.encode(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, t.base+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.HeaderDeviceID, t.device)

	if t.token != "" {
		req.Header.Set(middleware.HeaderDeviceToken, t.token)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, errs.ErrNetworkFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", method, path, errs.ErrNetworkFailed, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(method, path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	return nil
}

func (t *HTTPTransport) encode(in any) (io.Reader, bool, error) {
	if in == nil {
		return nil, false, nil
	}

	data, err := sonic.Marshal(in)
	if err != nil {
		return nil, false, fmt.Errorf("encode request: %w", err)
	}

	if !t.compress {
		return bytes.NewReader(data), false, nil
	}

	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, false, err
	}

	if err := zw.Close(); err != nil {
		return nil, false, err
	}

	return &buf, true, nil
}

// statusError 5xx 与 429 视为网络失败，可在下个周期重试；其他 4xx 保留服务端的错误信息.
func statusError(method, path string, status int, body []byte) error {
	var msg struct {
		Error string `json:"error"`
	}

	_ = sonic.Unmarshal(body, &msg)
	if msg.Error == "" {
		msg.Error = http.StatusText(status)
	}

	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return fmt.Errorf("%s %s: status %d: %s: %w", method, path, status, msg.Error, errs.ErrNetworkFailed)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s %s: status %d: %s: %w", method, path, status, msg.Error, errs.ErrValidationFailed)
	default:
		return fmt.Errorf("%s %s: status %d: %s", method, path, status, msg.Error)
	}
}
