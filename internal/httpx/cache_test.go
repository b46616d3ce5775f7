package httpx_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
)

type statusBody struct {
	Status string `json:"status"`
	Cached bool   `json:"cached"`
}

func TestAdminTransition_RefreshesStatusCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	a := newAPIWithCache(t, redisx.NewCache(rdb))

	var o orders.Order
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/orders", "alice", placeBody(1), &o))

	body := map[string]any{"event": "approve"}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/admin/orders/"+o.ID+"/transitions", "admin-1", body, &o))

	var st statusBody
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/orders/"+o.ID+"/status", "alice", nil, &st))
	assert.True(t, st.Cached)
	assert.Equal(t, string(orders.StatusProcessing), st.Status)

	// the cached entry is still scoped to its owner
	var e errResp
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/orders/"+o.ID+"/status", "bob", nil, &e))
}

func TestAdminTransition_CacheFailureIsLoggedNotReturned(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	a := newAPIWithCache(t, redisx.NewCache(rdb))

	var o orders.Order
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/orders", "alice", placeBody(1), &o))

	var buf bytes.Buffer
	prev := logger.Logger
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.Logger = prev })

	mr.Close()

	body := map[string]any{"event": "approve"}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/admin/orders/"+o.ID+"/transitions", "admin-1", body, &o))
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Contains(t, buf.String(), "status cache write failed")
	assert.Contains(t, buf.String(), o.ID)
}
