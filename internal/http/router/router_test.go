package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/aggregate"
	"github.com/dropDatabas3/ipvote/internal/feed"
	"github.com/dropDatabas3/ipvote/internal/http/controllers"
	"github.com/dropDatabas3/ipvote/internal/http/router"
	"github.com/dropDatabas3/ipvote/internal/http/services"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/rate"
	"github.com/dropDatabas3/ipvote/internal/storage"
	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

func newTestRouter(t *testing.T, limiter rate.Limiter) (http.Handler, storage.BlobStore) {
	t.Helper()
	store := memory.New()

	fd := feed.New(store)
	led := ledger.New(store, ledger.WithNotifier(fd))
	agg := aggregate.New(store)

	h := router.New(router.Deps{
		Vote:        controllers.NewVoteController(services.NewVoteService(led)),
		Polls:       controllers.NewPollsController(services.NewPollsService(agg)),
		Feed:        controllers.NewFeedController(services.NewFeedService(fd)),
		Health:      controllers.NewHealthController(services.NewHealthService(store)),
		CORSOrigins: []string{"*"},
		RateLimiter: limiter,
	})
	return h, store
}

func doRequest(h http.Handler, method, target, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVoteThenResults(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=yes", "203.0.113.7")
	require.Equal(t, http.StatusCreated, rec.Code)

	var voteResp struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &voteResp))
	require.True(t, voteResp.Accepted)

	rec = doRequest(h, http.MethodGet, "/polls/testpoll/votes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "time,masked_ip,poll,vote"))
	require.Contains(t, body, "203.0.113.XXX")
	require.Contains(t, body, ",testpoll,yes,")
	require.NotContains(t, body, "203.0.113.7")

	rec = doRequest(h, http.MethodGet, "/polls/testpoll/votes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestVoteDuplicateConflict(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=yes", "203.0.113.7")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=no", "203.0.113.7")
	require.Equal(t, http.StatusConflict, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "duplicate_vote", errResp.Code)
}

func TestVoteValidationRejected(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodPost, "/vote?poll=cats_or_dogs&vote=birds", "203.0.113.7")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "validation_failed", errResp.Code)
}

func TestResultsUnknownPoll(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodGet, "/polls/nope/votes", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "POLL_NOT_FOUND", errResp.Code)
}

func TestPopularAfterVotes(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	require.Equal(t, http.StatusCreated,
		doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=yes", "203.0.113.7").Code)
	require.Equal(t, http.StatusCreated,
		doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=no", "198.51.100.9").Code)

	rec := doRequest(h, http.MethodGet, "/polls/popular", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var resp struct {
		Columns []string          `json:"columns"`
		Data    []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Columns, "poll")
	require.Len(t, resp.Data, 1)
	require.JSONEq(t, `["testpoll",2,2]`, string(resp.Data[0]))
}

func TestRecentFeed(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	require.Equal(t, http.StatusCreated,
		doRequest(h, http.MethodPost, "/vote?poll=testpoll&vote=yes", "203.0.113.7").Code)

	rec := doRequest(h, http.MethodGet, "/feed/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Votes []feed.Entry `json:"votes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Votes, 1)
	require.Equal(t, "testpoll", resp.Votes[0].Poll)
	require.Equal(t, "yes", resp.Votes[0].Vote)
	require.Equal(t, "203.0.11X.XXX", resp.Votes[0].IP)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Storage string `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ready", resp.Status)
	require.Equal(t, "ok", resp.Storage)
}

func TestRouteNotFound(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := doRequest(h, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "ROUTE_NOT_FOUND", errResp.Code)
}

func TestRateLimitEnforced(t *testing.T) {
	limiter := rate.NewMemoryLimiter(2, time.Minute)
	h, _ := newTestRouter(t, limiter)

	for i := 0; i < 2; i++ {
		rec := doRequest(h, http.MethodGet, "/feed/recent", "203.0.113.7")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(h, http.MethodGet, "/feed/recent", "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Otra IP tiene su propia ventana.
	rec = doRequest(h, http.MethodGet, "/feed/recent", "198.51.100.9")
	require.Equal(t, http.StatusOK, rec.Code)

	// Los paths whitelisteados no consumen cuota.
	rec = doRequest(h, http.MethodGet, "/healthz", "203.0.113.7")
	require.Equal(t, http.StatusOK, rec.Code)
}
