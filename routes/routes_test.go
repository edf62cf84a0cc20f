package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergington/db"
	"mergington/models"
)

type listBody map[string]struct {
	Description     *string  `json:"description"`
	Schedule        *string  `json:"schedule"`
	MaxParticipants *int     `json:"max_participants"`
	Participants    []string `json:"participants"`
	Tags            []string `json:"tags"`
}

func newTestRepo(t *testing.T) models.ActivityRepository {
	t.Helper()
	gdb, err := db.Open(db.Config{Driver: db.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.InitDB(context.Background(), gdb))
	return models.NewGormActivityRepository(gdb)
}

func setupServer(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := gin.New()
	RegisterRoutes(s, newTestRepo(t), opts)
	return s
}

func doReq(s http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func activityURL(name, action, email string) string {
	return "/activities/" + url.PathEscape(name) + "/" + action + "?" + url.Values{"email": {email}}.Encode()
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listBody {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func TestRoot_RedirectsToStatic(t *testing.T) {
	s := setupServer(t, Options{})
	w := doReq(s, http.MethodGet, "/")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, IndexPath, w.Header().Get("Location"))
}

func TestStatic_ServesIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))

	s := setupServer(t, Options{StaticDir: dir})
	w := doReq(s, http.MethodGet, "/static/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>hi</h1>")

	w = doReq(s, http.MethodGet, "/static/missing.css")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetActivities_Shape(t *testing.T) {
	s := setupServer(t, Options{})
	body := decodeList(t, doReq(s, http.MethodGet, "/activities"))

	require.Len(t, body, 4)
	for _, name := range []string{"Chess Club", "Programming Class", "Gym Class", "GitHub Skills"} {
		a, ok := body[name]
		require.True(t, ok, name)
		assert.NotNil(t, a.Participants)
		assert.Empty(t, a.Participants)
	}
	chess := body["Chess Club"]
	assert.Equal(t, "Learn strategies and compete in chess tournaments", *chess.Description)
	assert.Equal(t, 12, *chess.MaxParticipants)
}

func TestGetActivities_Filters(t *testing.T) {
	s := setupServer(t, Options{})

	body := decodeList(t, doReq(s, http.MethodGet, "/activities?q=github"))
	require.Len(t, body, 1)
	assert.Contains(t, body, "GitHub Skills")

	body = decodeList(t, doReq(s, http.MethodGet, "/activities?day=MONDAYS"))
	require.Len(t, body, 1)
	assert.Contains(t, body, "Gym Class")

	body = decodeList(t, doReq(s, http.MethodGet, "/activities?max_participants=20"))
	assert.Len(t, body, 2)
	assert.Contains(t, body, "Chess Club")
	assert.Contains(t, body, "Programming Class")

	body = decodeList(t, doReq(s, http.MethodGet, "/activities?tags=fitness,strategy"))
	assert.Len(t, body, 2)
	assert.Contains(t, body, "Chess Club")
	assert.Contains(t, body, "Gym Class")

	body = decodeList(t, doReq(s, http.MethodGet, "/activities?q=learn&tags=coding&max_participants=20"))
	require.Len(t, body, 1)
	assert.Contains(t, body, "Programming Class")
}

func TestGetActivities_BadMaxParticipants(t *testing.T) {
	s := setupServer(t, Options{})
	w := doReq(s, http.MethodGet, "/activities?max_participants=lots")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignup_Success(t *testing.T) {
	s := setupServer(t, Options{})

	w := doReq(s, http.MethodPost, activityURL("Chess Club", "signup", "student@example.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Signed up student@example.com for Chess Club"}`, w.Body.String())

	body := decodeList(t, doReq(s, http.MethodGet, "/activities"))
	assert.Equal(t, []string{"student@example.com"}, body["Chess Club"].Participants)
}

func TestSignup_UnknownActivity(t *testing.T) {
	s := setupServer(t, Options{})
	w := doReq(s, http.MethodPost, activityURL("Nonexistent Activity", "signup", "student@example.com"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, detail(t, w), "Activity not found")
}

func TestSignup_Duplicate(t *testing.T) {
	s := setupServer(t, Options{})
	target := activityURL("Chess Club", "signup", "duplicate@example.com")

	require.Equal(t, http.StatusOK, doReq(s, http.MethodPost, target).Code)
	w := doReq(s, http.MethodPost, target)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "already signed up")

	body := decodeList(t, doReq(s, http.MethodGet, "/activities"))
	assert.Len(t, body["Chess Club"].Participants, 1)
}

func TestSignup_ChessClubFullAfterTwelve(t *testing.T) {
	s := setupServer(t, Options{})

	for i := 0; i < 12; i++ {
		w := doReq(s, http.MethodPost, activityURL("Chess Club", "signup", fmt.Sprintf("student%d@example.com", i)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := doReq(s, http.MethodPost, activityURL("Chess Club", "signup", "student13@example.com"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "full")

	// a member signing up again is told so, even though the club is full
	w = doReq(s, http.MethodPost, activityURL("Chess Club", "signup", "student0@example.com"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "already signed up")
}

func TestSignup_EmailValidation(t *testing.T) {
	s := setupServer(t, Options{})

	for _, target := range []string{
		"/activities/Chess%20Club/signup",
		activityURL("Chess Club", "signup", ""),
		activityURL("Chess Club", "signup", "not-an-email"),
	} {
		w := doReq(s, http.MethodPost, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestSignup_SameStudentMultipleActivities(t *testing.T) {
	s := setupServer(t, Options{})
	email := "multisport@example.com"

	require.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Chess Club", "signup", email)).Code)
	require.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Programming Class", "signup", email)).Code)

	body := decodeList(t, doReq(s, http.MethodGet, "/activities"))
	assert.Contains(t, body["Chess Club"].Participants, email)
	assert.Contains(t, body["Programming Class"].Participants, email)
}

func TestUnregister(t *testing.T) {
	s := setupServer(t, Options{})
	email := "unregister@example.com"

	require.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Programming Class", "signup", email)).Code)

	w := doReq(s, http.MethodDelete, activityURL("Programming Class", "unregister", email))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Unregistered unregister@example.com from Programming Class"}`, w.Body.String())

	body := decodeList(t, doReq(s, http.MethodGet, "/activities"))
	assert.NotContains(t, body["Programming Class"].Participants, email)

	// signing up again works after unregistering
	assert.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Programming Class", "signup", email)).Code)
}

func TestUnregister_Errors(t *testing.T) {
	s := setupServer(t, Options{})

	w := doReq(s, http.MethodDelete, activityURL("Nonexistent Activity", "unregister", "student@example.com"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, detail(t, w), "Activity not found")

	w = doReq(s, http.MethodDelete, activityURL("Gym Class", "unregister", "notsignedup@example.com"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "not signed up")

	w = doReq(s, http.MethodDelete, "/activities/Gym%20Class/unregister")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := setupServer(t, Options{})
	w := doReq(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

type failingRepo struct{ models.ActivityRepository }

func (failingRepo) ListActivities(context.Context, models.ActivityFilter) ([]models.ActivityInfo, error) {
	return nil, errors.New("disk on fire")
}

func (failingRepo) SignUp(context.Context, string, string) error {
	return errors.New("disk on fire")
}

func (failingRepo) Ping(context.Context) error { return errors.New("disk on fire") }

func TestStorageFailuresAre5xx(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := gin.New()
	RegisterRoutes(s, failingRepo{}, Options{})

	w := doReq(s, http.MethodGet, "/activities")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")

	w = doReq(s, http.MethodPost, activityURL("Chess Club", "signup", "a@example.com"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doReq(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t, Options{})
	doReq(s, http.MethodPost, activityURL("Chess Club", "signup", "metrics@example.com"))

	w := doReq(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "activity_signups_total")
}

func TestRequestIDHeader(t *testing.T) {
	s := setupServer(t, Options{})

	w := doReq(s, http.MethodGet, "/activities")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/activities", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get("X-Request-ID"))
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestResponseCache_PurgedOnWrites(t *testing.T) {
	s := setupServer(t, Options{Redis: newMiniRedis(t)})
	email := "cached@example.com"

	w := doReq(s, http.MethodGet, "/activities")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	w = doReq(s, http.MethodGet, "/activities")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Empty(t, decodeList(t, w)["Chess Club"].Participants)

	require.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Chess Club", "signup", email)).Code)

	w = doReq(s, http.MethodGet, "/activities")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, []string{email}, decodeList(t, w)["Chess Club"].Participants)

	require.Equal(t, http.StatusOK, doReq(s, http.MethodDelete, activityURL("Chess Club", "unregister", email)).Code)
	w = doReq(s, http.MethodGet, "/activities")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Empty(t, decodeList(t, w)["Chess Club"].Participants)
}

func TestResponseCache_KeyedByQuery(t *testing.T) {
	s := setupServer(t, Options{Redis: newMiniRedis(t)})

	assert.Equal(t, "MISS", doReq(s, http.MethodGet, "/activities?q=chess").Header().Get("X-Cache"))
	w := doReq(s, http.MethodGet, "/activities?q=gym")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, decodeList(t, w), "Gym Class")
	assert.Equal(t, "HIT", doReq(s, http.MethodGet, "/activities?q=chess").Header().Get("X-Cache"))
}

func TestSignupQuota(t *testing.T) {
	s := setupServer(t, Options{Redis: newMiniRedis(t), SignupQuota: 2})
	email := "busy@example.com"

	assert.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Chess Club", "signup", email)).Code)
	assert.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Gym Class", "signup", email)).Code)
	w := doReq(s, http.MethodPost, activityURL("Programming Class", "signup", email))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other students are unaffected
	assert.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Programming Class", "signup", "calm@example.com")).Code)
}

func TestSignupQuota_FailedAttemptsAreFree(t *testing.T) {
	s := setupServer(t, Options{Redis: newMiniRedis(t), SignupQuota: 2})
	email := "unlucky@example.com"

	assert.Equal(t, http.StatusNotFound, doReq(s, http.MethodPost, activityURL("Nope", "signup", email)).Code)
	assert.Equal(t, http.StatusNotFound, doReq(s, http.MethodPost, activityURL("Nope", "signup", email)).Code)

	w := doReq(s, http.MethodPost, activityURL("Chess Club", "signup", email))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// a duplicate is rejected by the handler and not charged either
	assert.Equal(t, http.StatusBadRequest, doReq(s, http.MethodPost, activityURL("Chess Club", "signup", email)).Code)
	assert.Equal(t, http.StatusOK, doReq(s, http.MethodPost, activityURL("Gym Class", "signup", email)).Code)

	w = doReq(s, http.MethodPost, activityURL("Programming Class", "signup", email))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, detail(t, w), "quota")
}
