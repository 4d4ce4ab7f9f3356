package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alioptr7/the-first-sub000/internal/cache"
	"github.com/alioptr7/the-first-sub000/internal/http/middleware"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/ratelimit"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/alioptr7/the-first-sub000/internal/service/requests"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testUser     = "7d1f2b5e-3c1a-4f7e-9b7a-1a2b3c4d5e6f"
	inactiveUser = "0b9e5a10-7a51-4a1c-8f3f-3f2e1d0c9b8a"
	limitedUser  = "5c6d7e8f-9a0b-4c1d-8e2f-3a4b5c6d7e8f"
	testToken    = "s3cret"
)

var now = time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC)

var accountMinute = int64(1)

type fakeUsers map[string]model.User

func (f fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type fakeRequests struct {
	submitted []requests.Submission
	results   map[string]model.CachedResponse
}

func (f *fakeRequests) Submit(_ context.Context, sub requests.Submission) (model.Request, error) {
	if sub.Priority > 10 {
		return model.Request{}, &requests.InvalidRequestError{Err: &model.ValidationError{Field: "priority", Reason: "must be between 1 and 10"}}
	}
	f.submitted = append(f.submitted, sub)
	return model.Request{ID: "req-1", UserID: sub.UserID, Priority: 5, Status: model.RequestPending, CreatedAt: now}, nil
}

func (f *fakeRequests) Result(_ context.Context, id string) (model.CachedResponse, error) {
	r, ok := f.results[id]
	if !ok {
		return model.CachedResponse{}, requests.ErrNotAvailable
	}
	return r, nil
}

type testEnv struct {
	e        *echo.Echo
	mr       *miniredis.Miniredis
	requests *fakeRequests
	cache    *cache.ResponseCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reqs := &fakeRequests{results: map[string]model.CachedResponse{}}
	rc := cache.NewResponseCache(rdb, time.Hour, nil)
	limiter := ratelimit.New(ratelimit.NewRedisStore(rdb), ratelimit.DefaultTiers(),
		ratelimit.WithClock(func() time.Time { return now }))

	e := NewRouter(Deps{
		Users: fakeUsers{
			testUser:     {ID: testUser, ProfileType: "free", IsActive: true},
			inactiveUser: {ID: inactiveUser, ProfileType: "free", IsActive: false},
			limitedUser:  {ID: limitedUser, ProfileType: "free", IsActive: true, RateLimitMinute: &accountMinute},
		},
		Limiter:    limiter,
		Requests:   reqs,
		Cache:      rc,
		AdminToken: testToken,
	})
	return &testEnv{e: e, mr: mr, requests: reqs, cache: rc}
}

func (env *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSubmitRequiresKnownActiveUser(t *testing.T) {
	env := newTestEnv(t)
	body := `{"query_type":"search","query_params":{"q":"x"}}`

	if rec := env.do(http.MethodPost, "/v1/requests", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: expected 401, got %d", rec.Code)
	}
	hdr := map[string]string{middleware.HeaderUserID: "11111111-2222-4333-8444-555555555555"}
	if rec := env.do(http.MethodPost, "/v1/requests", body, hdr); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", rec.Code)
	}
	hdr[middleware.HeaderUserID] = inactiveUser
	if rec := env.do(http.MethodPost, "/v1/requests", body, hdr); rec.Code != http.StatusForbidden {
		t.Errorf("inactive user: expected 403, got %d", rec.Code)
	}
}

func TestSubmitCountsAdmittedRequests(t *testing.T) {
	env := newTestEnv(t)
	hdr := map[string]string{middleware.HeaderUserID: testUser}

	rec := env.do(http.MethodPost, "/v1/requests", `{"query_type":"search","query_params":{"q":"x"}}`, hdr)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit: %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Level"); got != "ok" {
		t.Errorf("X-RateLimit-Level: %q", got)
	}
	if len(env.requests.submitted) != 1 || env.requests.submitted[0].UserID != testUser {
		t.Errorf("submission: %+v", env.requests.submitted)
	}
	v, err := env.mr.Get(ratelimit.CounterKey(testUser, ratelimit.Minute, now))
	if err != nil || v != "1" {
		t.Errorf("minute counter: %q, %v", v, err)
	}

	// rejected submissions are not counted
	rec = env.do(http.MethodPost, "/v1/requests", `{"query_type":"search","priority":11}`, hdr)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if v, _ := env.mr.Get(ratelimit.CounterKey(testUser, ratelimit.Minute, now)); v != "1" {
		t.Errorf("invalid request was counted: %q", v)
	}
}

func TestSubmitRejectedWhenExceeded(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mr.Set(ratelimit.CounterKey(testUser, ratelimit.Minute, now), "10"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodPost, "/v1/requests", `{"query_type":"search"}`, map[string]string{middleware.HeaderUserID: testUser})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After: %q", got)
	}
	body := decode(t, rec)
	if body["retry_after"] != float64(60) || body["level"] != "exceeded" {
		t.Errorf("unexpected body %v", body)
	}
	remaining, _ := body["remaining"].(map[string]any)
	if remaining["minute"] != float64(0) || remaining["hour"] != float64(100) {
		t.Errorf("remaining: %v", remaining)
	}
	if len(env.requests.submitted) != 0 {
		t.Error("exceeded request must not be stored")
	}
}

func TestSubmitUsesAccountLimits(t *testing.T) {
	env := newTestEnv(t)
	hdr := map[string]string{middleware.HeaderUserID: limitedUser}
	body := `{"query_type":"search"}`

	rec := env.do(http.MethodPost, "/v1/requests", body, hdr)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first: expected 202, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Errorf("X-RateLimit-Limit: %q", got)
	}
	rec = env.do(http.MethodPost, "/v1/requests", body, hdr)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: expected 429 under the synced minute limit, got %d", rec.Code)
	}
	if len(env.requests.submitted) != 1 {
		t.Errorf("submitted %d requests", len(env.requests.submitted))
	}

	// stats on the admin surface see the same limit
	rec = env.do(http.MethodGet, "/admin/rate-limits/"+limitedUser+"/stats", "", map[string]string{HeaderAdminToken: testToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body)
	}
	var st ratelimit.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Windows) == 0 || st.Windows[0].Window != ratelimit.Minute || st.Windows[0].Limit != 1 {
		t.Errorf("stats do not carry the account limit: %+v", st.Windows)
	}
}

func TestResultNotAvailableYet(t *testing.T) {
	env := newTestEnv(t)
	env.requests.results["done"] = model.CachedResponse{RequestID: "done", SubjectID: testUser, Status: model.ResultSuccess}
	hdr := map[string]string{middleware.HeaderUserID: testUser}

	rec := env.do(http.MethodGet, "/v1/requests/pending-id/result", "", hdr)
	if rec.Code != http.StatusAccepted || decode(t, rec)["message"] != "not available yet" {
		t.Errorf("pending: %d %s", rec.Code, rec.Body)
	}
	rec = env.do(http.MethodGet, "/v1/requests/done/result", "", hdr)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "success" {
		t.Errorf("done: %d %s", rec.Code, rec.Body)
	}
}

func TestAdminToken(t *testing.T) {
	env := newTestEnv(t)
	path := "/admin/rate-limits/" + testUser + "/reset"

	if rec := env.do(http.MethodPost, path, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, path, "", map[string]string{HeaderAdminToken: testToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if decode(t, rec)["reset_count"] != float64(3) {
		t.Errorf("unexpected body %s", rec.Body)
	}

	disabled := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	req.Header.Set(HeaderAdminToken, "")
	out := httptest.NewRecorder()
	disabled.ServeHTTP(out, req)
	if out.Code != http.StatusForbidden {
		t.Errorf("empty admin token must disable admin api, got %d", out.Code)
	}
}

func TestAdminRateLimitAndCache(t *testing.T) {
	env := newTestEnv(t)
	admin := map[string]string{HeaderAdminToken: testToken}
	ctx := context.Background()

	rec := env.do(http.MethodPut, "/admin/rate-limits/"+testUser+"/custom", `{"minute":50}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("custom limits: %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(http.MethodPut, "/admin/rate-limits/"+testUser+"/custom", `{}`, admin); rec.Code != http.StatusBadRequest {
		t.Errorf("empty custom limits: expected 400, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/admin/rate-limits/"+testUser+"/stats", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var st ratelimit.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Profile != "free" || st.Windows[0].Limit != 50 {
		t.Errorf("stats: %+v", st)
	}

	env.cache.Set(ctx, "r1", model.CachedResponse{RequestID: "r1", SubjectID: testUser}, 0)
	env.cache.Set(ctx, "r2", model.CachedResponse{RequestID: "r2", SubjectID: "someone-else"}, 0)
	rec = env.do(http.MethodDelete, "/admin/cache/users/"+testUser, "", admin)
	if rec.Code != http.StatusOK || decode(t, rec)["deleted"] != float64(1) {
		t.Errorf("invalidate user: %d %s", rec.Code, rec.Body)
	}
	rec = env.do(http.MethodDelete, "/admin/cache", "", admin)
	if rec.Code != http.StatusOK || decode(t, rec)["deleted"] != float64(1) {
		t.Errorf("clear: %d %s", rec.Code, rec.Body)
	}

	if rec := env.do(http.MethodGet, "/admin/batches", "", admin); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("batches without clickhouse: expected 503, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/admin/transfer/requests/export", "", admin); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("trigger without side: expected 503, got %d", rec.Code)
	}
}
