package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/igolaizola/lyricvid/pkg/ratelimit"
)

const DefaultBaseURL = "https://apibox.erweima.ai/api/v1"

type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	apiKey    string
	baseURL   string
	poll      time.Duration
	callback  string
}

type Config struct {
	APIKey  string
	BaseURL string
	Wait    time.Duration
	Poll    time.Duration
	// CallbackURL is sent on job creation. The API requires one even if it
	// is never called back.
	CallbackURL string
	Debug       bool
	Client      *http.Client
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 1 * time.Second
	}
	poll := cfg.Poll
	if poll == 0 {
		poll = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	callback := cfg.CallbackURL
	if callback == "" {
		callback = "https://api.example.com/callback"
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		poll:      poll,
		callback:  callback,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

var backoff = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
}

const maxAttempts = 3

// envelope is the common shape of every API response.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.doAttempt(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		wait, ok := retryable(err, attempt)
		if !ok || attempt >= maxAttempts {
			return err
		}
		log.Printf("suno: %v (retrying in %s)\n", err, wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// retryable reports whether a failed request may succeed later and how long
// to wait before the next attempt.
func retryable(err error, attempt int) (time.Duration, bool) {
	wait := backoff[min(attempt-1, len(backoff)-1)]
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wait, true
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, 520:
			if status.RetryAfter > 0 {
				wait = status.RetryAfter
			}
			return wait, true
		}
		return 0, false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeTooFrequent, codeMaintenance, http.StatusInternalServerError:
			return wait, true
		}
	}
	return 0, false
}

// StatusError is returned when the server answers with a non 2xx status.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Code)
}

// API codes returned inside the response envelope.
const (
	codeNoCredits   = 429
	codeTooFrequent = 430
	codeMaintenance = 455
)

// APIError is returned when the API answers with a non success code.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api code %d: %s", e.Code, e.Msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrQuota && e.Code == codeNoCredits
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("suno: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("suno: do %s %s %s", method, path, string(body))

	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("suno: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("suno: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("suno: couldn't read response body: %w", err)
	}
	c.log("suno: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 100 {
			errMessage = errMessage[:100] + "..."
		}
		return fmt.Errorf("suno: %s %s returned (%s): %w", method, u, errMessage, &StatusError{
			Code:       resp.StatusCode,
			RetryAfter: retryAfter(resp.Header),
		})
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("suno: couldn't unmarshal response body: %w", err)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("suno: %s %s: %w", method, path, &APIError{Code: env.Code, Msg: env.Msg})
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("suno: %s %s: %w", method, path, ErrNoData)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("suno: couldn't unmarshal response data (%T): %w", out, err)
	}
	return nil
}
