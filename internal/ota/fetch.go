// internal/ota/fetch.go
package ota

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	ErrRedirect         = errors.New("ota: redirect not supported")
	ErrUnexpectedStatus = errors.New("ota: unsupported response code")
	ErrInvalidContent   = errors.New("ota: invalid content-type")
	ErrNoContentLength  = errors.New("ota: invalid content-length received from server")
	ErrIncompleteWrite  = errors.New("ota: incomplete write")
	ErrNotFinished      = errors.New("ota: update not finished properly")
)

const (
	contentTypeFirmware = "application/octet-stream"
	defaultHTTPTimeout  = 2 * time.Minute
)

// NewHTTPClient returns a client that never follows redirects.
// caFile, when set, replaces the system roots.
func NewHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	// keep Content-Length intact; the image is pre-sized from it
	tr.DisableCompression = true

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("ota: ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ota: ca file %s: no certificates", caFile)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// get issues a GET and accepts only 200. The caller closes the body.
func (c *Coordinator) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ota: request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ota: GET failed: %w", err)
	}
	c.log.Debug("HTTP GET", "code", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrRedirect, resp.StatusCode)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// RemoteVersion asks the update server for the advertised version.
// The header is only trusted on a firmware content type.
func (c *Coordinator) RemoteVersion(ctx context.Context) (string, error) {
	c.log.Debug("requesting firmware", "url", c.url)

	resp, err := c.get(ctx)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	version := resp.Header.Get(c.cfg.VersionHeader)
	c.log.Debug("headers", c.cfg.VersionHeader, version, "content_type", ct)

	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != contentTypeFirmware {
		return "", fmt.Errorf("%w: %q", ErrInvalidContent, ct)
	}
	return strings.TrimSpace(version), nil
}

// WellFormed reports whether remote is comparable with current: same width,
// digits only, dots in the same places.
func WellFormed(remote, current string) bool {
	if remote == "" || len(remote) != len(current) {
		return false
	}
	for i := 0; i < len(remote); i++ {
		r := remote[i]
		if (r == '.') != (current[i] == '.') {
			return false
		}
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Newer compares fixed-width zero-padded versions; lexicographic order is
// numeric order for them.
func Newer(remote, current string) bool {
	return WellFormed(remote, current) && remote > current
}
