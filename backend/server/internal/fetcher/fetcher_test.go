package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reportproxy/reportproxy/shared/testutils"

	"github.com/stretchr/testify/require"
)

type staticCredentials struct {
	token string
	err   error
}

func (c staticCredentials) AccessToken(ctx context.Context, ownerRef string) (string, error) {
	return c.token, c.err
}

func newTestFetcher(creds CredentialSource) *Fetcher {
	return NewFetcher(creds, 100, 100, 5*time.Second)
}

func TestFetchSuccess(t *testing.T) {
	payload := testutils.MakeFakeReportPayload(3)
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	f := newTestFetcher(staticCredentials{token: "tok-123"})
	body, err := f.Fetch(context.Background(), "owner-1", ts.URL)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestFetchClassification(t *testing.T) {
	tests := []struct {
		statusCode int
		body       string
		expected   FailureKind
	}{
		{http.StatusTooManyRequests, `{"error": "rateLimitExceeded"}`, QuotaExceeded},
		{http.StatusForbidden, `{"error": {"errors": [{"reason": "dailyLimitExceeded"}]}}`, QuotaExceeded},
		{http.StatusForbidden, `{"error": "insufficientPermissions"}`, AuthFailure},
		{http.StatusUnauthorized, `{"error": "authError"}`, AuthFailure},
		{http.StatusInternalServerError, "oops", UpstreamUnavailable},
		{http.StatusBadGateway, "oops", UpstreamUnavailable},
		{http.StatusBadRequest, `{"error": "invalidParameter"}`, BadRequest},
		{http.StatusNotFound, "", BadRequest},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d-%s", tc.statusCode, tc.expected), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			f := newTestFetcher(staticCredentials{token: "tok"})
			_, err := f.Fetch(context.Background(), "owner-1", ts.URL)
			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
			require.Equal(t, tc.expected, fetchErr.Kind)
			require.Equal(t, tc.statusCode, fetchErr.StatusCode)
		})
	}
}

func TestFetchNonJsonPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	f := newTestFetcher(staticCredentials{token: "tok"})
	_, err := f.Fetch(context.Background(), "owner-1", ts.URL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, BadRequest, fetchErr.Kind)
}

func TestFetchCredentialFailure(t *testing.T) {
	f := newTestFetcher(staticCredentials{err: fmt.Errorf("no refresh token on file")})
	_, err := f.Fetch(context.Background(), "owner-1", "https://upstream.example.com/data")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, AuthFailure, fetchErr.Kind)
}

func TestFetchUnreachableHost(t *testing.T) {
	f := newTestFetcher(staticCredentials{token: "tok"})
	_, err := f.Fetch(context.Background(), "owner-1", "http://127.0.0.1:1/nothing-listens-here")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, NetworkError, fetchErr.Kind)
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer ts.Close()

	f := NewFetcher(staticCredentials{token: "tok"}, 100, 100, 100*time.Millisecond)
	_, err := f.Fetch(context.Background(), "owner-1", ts.URL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Contains(t, []FailureKind{UpstreamUnavailable, NetworkError}, fetchErr.Kind)
}
