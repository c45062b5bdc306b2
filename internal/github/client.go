package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiVersion  = "2022-11-28"
	jsonAccept  = "application/vnd.github+json"
	defaultBase = "https://api.github.com"

	// defaultMaxPayloadBytes caps zipball downloads at 50 MiB. Filter
	// repositories are text-only; anything bigger is not a filter release.
	defaultMaxPayloadBytes = 50 << 20

	// maxJSONResponseBytes caps API response bodies (1 MiB).
	maxJSONResponseBytes = 1 << 20

	// defaultRetries is the total attempt budget for transient failures.
	defaultRetries = 3

	// retryBaseDelay is the first backoff interval; it doubles per attempt.
	retryBaseDelay = 500 * time.Millisecond
)

// Ref is a concrete, versioned pointer to fetchable content. Two refs with
// the same Version for the same source are guaranteed to name identical
// content, which is what makes the cache-skip safe.
type Ref struct {
	// Version is a release tag in release mode or a commit hash in branch mode.
	Version string

	// ZipballURL locates the source archive containing the filter files.
	ZipballURL string

	// Notes carries the release body or tip commit message, surfaced to the
	// user as a changelog on fresh installs.
	Notes string
}

// Client resolves filter sources against the hosting service and downloads
// resolved content.
type Client interface {
	// ResolveLatestRelease returns a Ref for the most recently published
	// release of the repository, or ErrNoReleaseFound.
	ResolveLatestRelease(ctx context.Context, owner, repo string) (Ref, error)

	// ResolveBranch returns a Ref for the current tip commit of the branch,
	// or ErrBranchNotFound.
	ResolveBranch(ctx context.Context, owner, repo, branch string) (Ref, error)

	// FetchZipball downloads the archive a Ref points at.
	FetchZipball(ctx context.Context, ref Ref) ([]byte, error)
}

// RESTClient implements Client against the GitHub REST API.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	maxPayload int64
	retries    int
	retryDelay time.Duration
}

// Option configures a RESTClient during construction.
type Option func(*RESTClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL, primarily for test servers.
func WithBaseURL(base string) Option {
	return func(c *RESTClient) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithToken sets a GitHub token for authenticated requests. Authenticated
// requests have a much higher rate limit.
func WithToken(token string) Option {
	return func(c *RESTClient) { c.token = token }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *RESTClient) { c.userAgent = ua }
}

// WithMaxPayloadBytes sets the download size ceiling.
func WithMaxPayloadBytes(n int64) Option {
	return func(c *RESTClient) { c.maxPayload = n }
}

// WithRetries sets the total attempt budget for transient failures. The
// budget is clamped to at least one attempt.
func WithRetries(n int) Option {
	return func(c *RESTClient) {
		if n < 1 {
			n = 1
		}
		c.retries = n
	}
}

// withRetryDelay shortens the backoff base, for tests only.
func withRetryDelay(d time.Duration) Option {
	return func(c *RESTClient) { c.retryDelay = d }
}

// NewRESTClient creates a client with production defaults.
func NewRESTClient(opts ...Option) *RESTClient {
	c := &RESTClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBase,
		userAgent:  "filterlaunch",
		maxPayload: defaultMaxPayloadBytes,
		retries:    defaultRetries,
		retryDelay: retryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest executes a GET with the GitHub API headers. The auth token is
// only attached when the request targets a known GitHub host, so it cannot
// leak to third-party CDNs via archive URLs.
func (c *RESTClient) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, permanentErr("creating request: %w", err)
	}

	req.Header.Set("Accept", jsonAccept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)

	if c.token != "" && c.isTrustedHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failures (timeouts, connection resets) are retryable.
		return nil, transientErr("executing request: %w", err)
	}
	return resp, nil
}

// classifyStatus maps an unexpected HTTP status to a classified error.
func classifyStatus(resp *http.Response, what string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return transientErr("%s: rate limited (status %d)", what, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return transientErr("%s: API rate limit exhausted", what)
	case resp.StatusCode >= 500:
		return transientErr("%s: server error (status %d)", what, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return permanentErr("%s: authentication required (status %d)", what, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return permanentErr("%s: not found", what)
	default:
		return permanentErr("%s: unexpected status %d", what, resp.StatusCode)
	}
}

// withRetry runs fn with bounded exponential backoff on transient failures.
// Non-transient failures and context cancellation abort immediately.
func (c *RESTClient) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return transientErr("aborted while backing off: %w", ctx.Err())
			}
		}

		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.retries, err)
}

// isTrustedHost reports whether reqURL targets the configured API host or,
// for the production base, github.com / codeload.github.com archive hosts.
func (c *RESTClient) isTrustedHost(reqURL *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	if strings.EqualFold(base.Host, "api.github.com") {
		return strings.EqualFold(reqURL.Host, "github.com") ||
			strings.EqualFold(reqURL.Host, "codeload.github.com")
	}
	return false
}
