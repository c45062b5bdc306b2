package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// releaseInfo is the JSON wire format of a GitHub release, reduced to the
// fields this program consumes.
type releaseInfo struct {
	ZipballURL string `json:"zipball_url"`
	TagName    string `json:"tag_name"`
	Body       string `json:"body"`
}

// branchInfo is the JSON wire format of a GitHub branch.
type branchInfo struct {
	Commit struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
	} `json:"commit"`
}

// ResolveLatestRelease queries the repository's release list and returns a
// Ref for the single most recently published release.
func (c *RESTClient) ResolveLatestRelease(ctx context.Context, owner, repo string) (Ref, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=1",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	what := fmt.Sprintf("resolving latest release of %s/%s", owner, repo)

	var ref Ref
	err := c.withRetry(ctx, func() error {
		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp, what)
		}

		var releases []releaseInfo
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&releases); err != nil {
			return permanentErr("%s: decoding response: %w", what, err)
		}
		if len(releases) == 0 {
			return fmt.Errorf("%s/%s: %w", owner, repo, ErrNoReleaseFound)
		}

		ref = Ref{
			Version:    releases[0].TagName,
			ZipballURL: releases[0].ZipballURL,
			Notes:      releases[0].Body,
		}
		return nil
	})
	if err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// ResolveBranch queries the branch's current tip commit and returns a Ref
// whose archive URL pins that exact commit.
func (c *RESTClient) ResolveBranch(ctx context.Context, owner, repo, branch string) (Ref, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/branches/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	what := fmt.Sprintf("resolving branch %s of %s/%s", branch, owner, repo)

	var ref Ref
	err := c.withRetry(ctx, func() error {
		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s/%s@%s: %w", owner, repo, branch, ErrBranchNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp, what)
		}

		var info branchInfo
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&info); err != nil {
			return permanentErr("%s: decoding response: %w", what, err)
		}
		if info.Commit.SHA == "" {
			return permanentErr("%s: response carries no commit", what)
		}

		ref = Ref{
			Version:    info.Commit.SHA,
			ZipballURL: c.archiveURL(owner, repo, info.Commit.SHA),
			Notes:      info.Commit.Commit.Message,
		}
		return nil
	})
	if err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// archiveURL builds the source archive URL for a pinned commit. Against the
// production API this is the github.com codeload endpoint; against an
// overridden base URL (tests) the archive is served by the same host.
func (c *RESTClient) archiveURL(owner, repo, sha string) string {
	host := "https://github.com"
	if c.baseURL != defaultBase {
		host = c.baseURL
	}
	return fmt.Sprintf("%s/%s/%s/archive/%s.zip",
		host, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))
}
