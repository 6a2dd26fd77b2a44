package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/seo-audit-service/internal/adapter/memory"
	"github.com/user/seo-audit-service/internal/delivery/http/handler"
	"github.com/user/seo-audit-service/internal/delivery/http/response"
	"github.com/user/seo-audit-service/internal/delivery/http/router"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/usecase"
)

func newServer(t *testing.T, checks ...handler.HealthCheck) (*httptest.Server, *memory.Queue) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	queue := memory.NewQueue()
	manager := usecase.NewAuditManager(&usecase.Deps{
		Audits: store,
		Queue:  queue,
		Settings: usecase.Settings{
			DefaultPagesLimit: 100,
			DefaultCrawlDepth: 3,
			MaxPagesLimit:     500,
			MaxCrawlDepth:     5,
		},
		Logger: logger,
	})
	srv := httptest.NewServer(router.New(handler.NewHandler(manager, logger, checks...), logger))
	t.Cleanup(srv.Close)
	return srv, queue
}

func postAudit(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/audits", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAndGetAudit(t *testing.T) {
	srv, queue := newServer(t)

	resp := postAudit(t, srv, `{"url":"https://example.com","org_id":"org-1","pages_limit":1000,"crawl_depth":2}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created response.AuditResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, entity.AuditQueued, created.Status)
	assert.Equal(t, 500, created.PagesLimit)
	assert.Equal(t, 2, created.CrawlDepth)
	assert.Equal(t, 1, queue.Len())

	get, err := http.Get(srv.URL + "/api/audits/" + created.ID)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var fetched response.AuditResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "org-1", fetched.OrgID)
	assert.Nil(t, fetched.OverallScore)
	assert.Nil(t, fetched.CrawlStats)
}

func TestCreateAudit_RejectsBadInput(t *testing.T) {
	srv, queue := newServer(t)

	for name, body := range map[string]string{
		"malformed json": `{"url":`,
		"missing url":    `{}`,
		"not a web url":  `{"url":"mailto:someone@example.com"}`,
		"negative depth": `{"url":"https://example.com","crawl_depth":-1}`,
		"negative pages": `{"url":"https://example.com","pages_limit":-5}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := postAudit(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Zero(t, queue.Len())
}

func TestGetAudit_NotFound(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/audits/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	ok := handler.HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := handler.HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	srv, _ := newServer(t, ok)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv, _ = newServer(t, ok, down)
	resp2, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)

	var body response.HealthResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	postAudit(t, srv, `{"url":"https://example.com"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
