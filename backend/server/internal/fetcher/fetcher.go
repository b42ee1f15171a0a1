// Package fetcher invokes the upstream reporting API for a resolved query and
// classifies the outcome. Classification matters only for logging; every
// failure kind feeds the same consecutive-error counter.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FailureKind classifies why a fetch attempt failed.
type FailureKind string

const (
	QuotaExceeded       FailureKind = "quota_exceeded"
	AuthFailure         FailureKind = "auth_failure"
	UpstreamUnavailable FailureKind = "upstream_unavailable"
	BadRequest          FailureKind = "bad_request"
	NetworkError        FailureKind = "network_error"
)

type FetchError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CredentialSource supplies upstream access tokens. The auth flow that mints
// and refreshes tokens lives outside this package; the fetcher only asks for
// a currently valid token for a given owner.
type CredentialSource interface {
	AccessToken(ctx context.Context, ownerRef string) (string, error)
}

// Fetcher performs rate-limited upstream requests with a fixed deadline.
type Fetcher struct {
	client      *http.Client
	credentials CredentialSource
	limiter     *rate.Limiter
	timeout     time.Duration
}

func NewFetcher(credentials CredentialSource, ratePerSec float64, burst int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		credentials: credentials,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), burst),
		timeout:     timeout,
	}
}

// Fetch requests the resolved URI on behalf of ownerRef and returns the raw
// JSON payload. Any failure is returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, ownerRef, resolvedUri string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: NetworkError, Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	token, err := f.credentials.AccessToken(ctx, ownerRef)
	if err != nil {
		return nil, &FetchError{Kind: AuthFailure, Message: fmt.Sprintf("failed to get access token: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedUri, nil)
	if err != nil {
		return nil, &FetchError{Kind: BadRequest, Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		kind := NetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			kind = UpstreamUnavailable
		}
		return nil, &FetchError{Kind: kind, Message: fmt.Sprintf("upstream request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, Message: fmt.Sprintf("failed to read upstream response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	if !json.Valid(body) {
		return nil, &FetchError{Kind: BadRequest, StatusCode: resp.StatusCode, Message: "upstream returned a non-JSON payload"}
	}
	return body, nil
}

func classifyStatus(statusCode int, body []byte) *FetchError {
	message := truncate(string(body), 500)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &FetchError{Kind: QuotaExceeded, StatusCode: statusCode, Message: message}
	case statusCode == http.StatusForbidden && looksLikeQuotaError(body):
		return &FetchError{Kind: QuotaExceeded, StatusCode: statusCode, Message: message}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &FetchError{Kind: AuthFailure, StatusCode: statusCode, Message: message}
	case statusCode >= 500:
		return &FetchError{Kind: UpstreamUnavailable, StatusCode: statusCode, Message: message}
	case statusCode >= 400:
		return &FetchError{Kind: BadRequest, StatusCode: statusCode, Message: message}
	default:
		return &FetchError{Kind: UpstreamUnavailable, StatusCode: statusCode, Message: message}
	}
}

// A 403 is a quota problem rather than an auth problem when the error body
// says so. The upstream API uses reason strings like dailyLimitExceeded and
// userRateLimitExceeded.
func looksLikeQuotaError(body []byte) bool {
	lowered := strings.ToLower(string(body))
	return strings.Contains(lowered, "quota") ||
		strings.Contains(lowered, "dailylimitexceeded") ||
		strings.Contains(lowered, "userratelimitexceeded") ||
		strings.Contains(lowered, "ratelimitexceeded")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
