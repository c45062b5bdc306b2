package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchZipball downloads the archive a Ref points at. Transient failures are
// retried with bounded exponential backoff; permanent failures, including a
// payload over the size ceiling, abort immediately. The returned bytes are
// the complete archive; no filesystem writes happen here.
func (c *RESTClient) FetchZipball(ctx context.Context, ref Ref) ([]byte, error) {
	var data []byte
	err := c.withRetry(ctx, func() error {
		var err error
		data, err = c.downloadOnce(ctx, ref.ZipballURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *RESTClient) downloadOnce(ctx context.Context, zipURL string) ([]byte, error) {
	resp, err := c.doRequest(ctx, zipURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, "downloading "+zipURL)
	}

	// The Content-Length header, when present, lets us reject oversized
	// payloads before reading a single byte.
	if resp.ContentLength > c.maxPayload {
		return nil, fmt.Errorf("%s is %d bytes (limit %d): %w",
			zipURL, resp.ContentLength, c.maxPayload, ErrPayloadTooLarge)
	}

	// Read one byte past the ceiling to distinguish "exactly at the limit"
	// from "over the limit" on chunked responses.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPayload+1))
	if err != nil {
		return nil, transientErr("reading %s: %w", zipURL, err)
	}
	if int64(len(data)) > c.maxPayload {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w", zipURL, c.maxPayload, ErrPayloadTooLarge)
	}

	return data, nil
}
