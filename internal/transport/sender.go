package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

// UserAgent is sent with every delivery request.
var UserAgent = wire.LibraryName + "/" + wire.LibraryVersion

type attemptsKey struct{}

// newRetryClient builds the retrying HTTP client: RetryMax retries after the
// first attempt, waiting RetryBaseDelay * 2^n before retry n, on transport
// errors and any non-2xx status.
func newRetryClient(cfg Config, metrics *Metrics) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	} else {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = cfg.Logger
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.RetryBaseDelay
	client.RetryWaitMax = cfg.RetryBaseDelay << max(cfg.MaxRetries, 0)
	client.Backoff = ExponentialBackoff
	client.CheckRetry = RetryOnFailure
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if n, ok := req.Context().Value(attemptsKey{}).(*int); ok {
			*n = attempt + 1
		}
		if attempt > 0 {
			metrics.retried()
		}
	}
	return client
}

// ExponentialBackoff waits min * 2^attemptNum, where attemptNum is 0 before
// the first retry. The cap is not applied.
func ExponentialBackoff(min, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	return min << attemptNum
}

// RetryOnFailure retries transport errors and every non-2xx response.
func RetryOnFailure(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return true, nil
	}
	return false, nil
}

// sendBatch POSTs one request body, retrying per the client policy. A batch
// that still fails is logged and dropped.
func (q *Queue) sendBatch(ctx context.Context, endpoint string, body []byte, items int) {
	attempts := 0
	status, err := q.post(context.WithValue(ctx, attemptsKey{}, &attempts), endpoint, body)
	if err == nil {
		q.metrics.batch(endpoint, "success")
		q.logger.Debug("delivered events",
			slog.String("endpoint", endpoint),
			slog.Int("items", items),
			slog.Int("attempts", attempts),
		)
		return
	}

	derr := &domain.DeliveryError{
		Endpoint:   endpoint,
		Attempts:   attempts,
		StatusCode: status,
		Items:      items,
		Err:        err,
	}
	q.metrics.batch(endpoint, "failure")
	q.metrics.dropped(DropDelivery, items)
	q.logger.Warn("dropping batch",
		slog.String("endpoint", endpoint),
		slog.Int("items", items),
		slog.String("error", derr.Error()),
	)
}

// post returns the final status code and a non-nil error unless the
// response was 2xx.
func (q *Queue) post(ctx context.Context, endpoint string, body []byte) (int, error) {
	payload := body
	if q.cfg.Compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return 0, fmt.Errorf("compress body: %w", err)
		}
		payload = compressed
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, q.cfg.BaseURL+endpoint, payload)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+q.cfg.APIKey)
	req.Header.Set("User-Agent", UserAgent)
	if q.cfg.Compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.StatusCode, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
