package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-clothing-orders/internal/httpx"
)

func corsRequest(h http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/orders", nil)
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORS_OnlyListedOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := httpx.CORS([]string{"https://shop.example.com"})(ok)

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		rec := corsRequest(h, method, "https://shop.example.com")
		assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"), method)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"), method)

		rec = corsRequest(h, method, "https://evil.example")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), method)
	}
}

func TestCORS_WildcardNeverAllowsCredentials(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := httpx.CORS([]string{"*"})(ok)

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		rec := corsRequest(h, method, "https://anywhere.example")
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), method)
		assert.NotEqual(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"), method)
	}
}
