// Package transport is the HTTP boundary to the backend API. It turns queued
// operations into REST calls and classifies failures into retryable network
// errors and terminal rejections.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"

	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/queue"
	"github.com/mnemoapp/mnemo/internal/syncer"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultRetryAttempts = 2
)

type Config struct {
	BaseURL       string
	AuthToken     string
	Timeout       time.Duration
	RetryAttempts int
}

type Client struct {
	httpClient    *resty.Client
	retryAttempts uint
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.AuthToken)
	}

	return &Client{
		httpClient:    client,
		retryAttempts: uint(cfg.RetryAttempts),
	}
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

// endpoint maps an operation to its backend route.
func endpoint(op queue.Operation) (method, path string, err error) {
	switch op.Type {
	case queue.TypeAnswerSubmit:
		return http.MethodPost, "/fsrs/submit-answer", nil
	case queue.TypeAnswerBatch:
		return http.MethodPost, "/fsrs/submit-batch", nil
	case queue.TypeSettingsUpdate:
		if op.UserID == "" {
			return "", "", fmt.Errorf("operation %s has no user id", op.ID)
		}
		return http.MethodPatch, "/users/" + op.UserID, nil
	case queue.TypeExamSettingsUpdate:
		if op.UserID == "" {
			return "", "", fmt.Errorf("operation %s has no user id", op.ID)
		}
		return http.MethodPost, "/users/" + op.UserID + "/exam-settings", nil
	case queue.TypeProgressSync:
		if op.UserID == "" {
			return "", "", fmt.Errorf("operation %s has no user id", op.ID)
		}
		return http.MethodPost, "/users/" + op.UserID + "/submit_answers", nil
	}
	return "", "", fmt.Errorf("no endpoint for operation type %q", op.Type)
}

// Send implements syncer.Fetcher. Network failures and retryable statuses
// (5xx, 408, 429) are retried with exponential backoff; any other 4xx is
// terminal and returned as-is.
func (c *Client) Send(ctx context.Context, op queue.Operation) (syncer.Result, error) {
	method, path, err := endpoint(op)
	if err != nil {
		return syncer.Result{}, err
	}
	if op.Payload == nil {
		return syncer.Result{}, fmt.Errorf("operation %s has no payload", op.ID)
	}
	body := op.Payload.Document()

	var result syncer.Result
	if err := retry.Do(
		func() error {
			res, err := c.do(ctx, method, path, body)
			if err != nil {
				var netErr *syncer.NetworkError
				if errors.As(err, &netErr) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			result = res
			return nil
		},
		c.retryOptions(ctx)...,
	); err != nil {
		return syncer.Result{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (syncer.Result, error) {
	req := c.httpClient.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	response, err := req.Execute(method, path)
	if err != nil {
		return syncer.Result{}, &syncer.NetworkError{Op: method, URL: path, Err: err}
	}
	if response.IsError() {
		status := response.StatusCode()
		if retryableStatus(status) {
			return syncer.Result{}, &syncer.NetworkError{Op: method, URL: path, StatusCode: status}
		}
		return syncer.Result{}, fmt.Errorf("response error %d: %s", status, response.String())
	}

	raw := response.String()
	if raw == "" {
		return syncer.Result{StatusCode: response.StatusCode()}, nil
	}
	var doc conflict.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return syncer.Result{}, fmt.Errorf("json.Unmarshal(%s) > %w", raw, err)
	}
	return syncer.Result{Document: doc, StatusCode: response.StatusCode()}, nil
}

// GetJSON fetches path and decodes the response body into out, with the same
// retry envelope as Send.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return retry.Do(
		func() error {
			response, err := c.httpClient.R().
				SetContext(ctx).
				SetResult(out).
				Get(path)
			if err != nil {
				return &syncer.NetworkError{Op: http.MethodGet, URL: path, Err: err}
			}
			if response.IsError() {
				status := response.StatusCode()
				if retryableStatus(status) {
					return &syncer.NetworkError{Op: http.MethodGet, URL: path, StatusCode: status}
				}
				return retry.Unrecoverable(fmt.Errorf("response error %d: %s", status, response.String()))
			}
			return nil
		},
		c.retryOptions(ctx)...,
	)
}

// Ping probes backend reachability without retries; the connectivity loop
// calls it on its own schedule.
func (c *Client) Ping(ctx context.Context) error {
	response, err := c.httpClient.R().SetContext(ctx).Get("/health/simple")
	if err != nil {
		return &syncer.NetworkError{Op: http.MethodGet, URL: "/health/simple", Err: err}
	}
	if response.IsError() {
		return &syncer.NetworkError{Op: http.MethodGet, URL: "/health/simple", StatusCode: response.StatusCode()}
	}
	return nil
}

func (c *Client) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts + 1),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
}

func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}
