package github

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	if !IsTransient(transientErr("boom")) {
		t.Error("transientErr not classified as transient")
	}
	if IsTransient(permanentErr("boom")) {
		t.Error("permanentErr classified as transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error classified as transient")
	}

	// Classification survives wrapping.
	wrapped := &Error{Transient: true, Err: errors.New("inner")}
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error not detected")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		headers       map[string]string
		wantTransient bool
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "server error", status: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway", status: http.StatusBadGateway, wantTransient: true},
		{
			name:          "rate limit exhausted",
			status:        http.StatusForbidden,
			headers:       map[string]string{"X-RateLimit-Remaining": "0"},
			wantTransient: true,
		},
		{name: "forbidden without rate limit", status: http.StatusForbidden, wantTransient: false},
		{name: "unauthorized", status: http.StatusUnauthorized, wantTransient: false},
		{name: "not found", status: http.StatusNotFound, wantTransient: false},
		{name: "teapot", status: http.StatusTeapot, wantTransient: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tc.status, Header: http.Header{}}
			for k, v := range tc.headers {
				resp.Header.Set(k, v)
			}

			err := classifyStatus(resp, "testing")
			if err == nil {
				t.Fatal("classifyStatus returned nil")
			}
			if IsTransient(err) != tc.wantTransient {
				t.Errorf("IsTransient = %v, want %v (err: %v)", IsTransient(err), tc.wantTransient, err)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	newClient := func() *RESTClient {
		return NewRESTClient(WithRetries(3), withRetryDelay(time.Millisecond))
	}

	t.Run("transient failures are retried", func(t *testing.T) {
		c := newClient()
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return transientErr("flaky")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("withRetry failed: %v", err)
		}
		if calls != 3 {
			t.Errorf("got %d calls, want 3", calls)
		}
	})

	t.Run("permanent failure aborts immediately", func(t *testing.T) {
		c := newClient()
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			return permanentErr("fatal")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("got %d calls, want 1", calls)
		}
	})

	t.Run("attempt budget is bounded", func(t *testing.T) {
		c := newClient()
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			return transientErr("always down")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 3 {
			t.Errorf("got %d calls, want 3", calls)
		}
	})

	t.Run("zero budget still attempts once", func(t *testing.T) {
		c := NewRESTClient(WithRetries(0), withRetryDelay(time.Millisecond))
		calls := 0
		err := c.withRetry(context.Background(), func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("withRetry failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("got %d calls, want 1", calls)
		}
	})

	t.Run("cancellation aborts backoff", func(t *testing.T) {
		c := NewRESTClient(WithRetries(3), withRetryDelay(time.Minute))
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := c.withRetry(ctx, func() error {
			calls++
			return transientErr("down")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("got %d calls before cancellation, want 1", calls)
		}
	})
}

func TestIsTrustedHost(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		reqURL  string
		want    bool
	}{
		{"api host", "https://api.github.com", "https://api.github.com/repos/a/b", true},
		{"github.com archive", "https://api.github.com", "https://github.com/a/b/archive/x.zip", true},
		{"codeload archive", "https://api.github.com", "https://codeload.github.com/a/b/zip/x", true},
		{"third party", "https://api.github.com", "https://evil.example.com/x", false},
		{"test server host", "http://127.0.0.1:8080", "http://127.0.0.1:8080/repos/a/b", true},
		{"test server does not trust github", "http://127.0.0.1:8080", "https://github.com/a/b", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewRESTClient(WithBaseURL(tc.baseURL))
			u, err := url.Parse(tc.reqURL)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.isTrustedHost(u); got != tc.want {
				t.Errorf("isTrustedHost(%s) = %v, want %v", tc.reqURL, got, tc.want)
			}
		})
	}
}
