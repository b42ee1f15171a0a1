package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithBasicAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	t.Run("no credentials configured rejects everything", func(t *testing.T) {
		handler := withBasicAuth("", "")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/internal/api/v1/stats", nil)
		req.SetBasicAuth("admin", "hunter2")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})

	t.Run("missing auth header", func(t *testing.T) {
		handler := withBasicAuth("admin", "hunter2")(okHandler)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/api/v1/stats", nil))
		require.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
		require.Contains(t, w.Result().Header.Get("WWW-Authenticate"), "Basic")
	})

	t.Run("wrong password", func(t *testing.T) {
		handler := withBasicAuth("admin", "hunter2")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/internal/api/v1/stats", nil)
		req.SetBasicAuth("admin", "wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	})

	t.Run("correct credentials", func(t *testing.T) {
		handler := withBasicAuth("admin", "hunter2")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/internal/api/v1/stats", nil)
		req.SetBasicAuth("admin", "hunter2")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		require.Equal(t, "OK", w.Body.String())
	})
}

func TestWithPanicGuard(t *testing.T) {
	handler := withPanicGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/query", nil))
	require.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
}

func TestMergeMiddlewaresOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				h.ServeHTTP(w, r)
			})
		}
	}
	handler := mergeMiddlewares(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/query", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}
