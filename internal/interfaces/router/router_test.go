package router

import (
	"encoding/json"
	"net/http"
	"testing"

	"sharehouse-backend/internal/config"
	"sharehouse-backend/internal/middleware"
	"sharehouse-backend/internal/testsupport"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	app *fiber.App
	mr  *miniredis.Miniredis
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("bot-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{
		DefaultCurrency:   "PLN",
		HealthAdminKey:    "admin",
		ExtUserSecretHash: string(hash),
	}
	app, err := Build(cfg, Deps{DB: testsupport.NewDB(t), Redis: rdb})
	require.NoError(t, err)
	return &fixture{app: app, mr: mr}
}

// login stores a session the way the web frontend does and returns the
// cookie value.
func (f *fixture) login(t *testing.T, id uuid.UUID) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"user": middleware.SessionUser{ID: id, Username: "u"}})
	require.NoError(t, err)
	require.NoError(t, f.mr.Set(middleware.SessionRedisPrefix+"sid1", string(b)))
	return "s:sid1.signature"
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := setup(t)

	status, out := testsupport.Do(t, f.app, "GET", "/health/json", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", out["status"])

	resp, err := f.app.Test(testsupport.JSONRequest(t, "GET", "/metrics", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSessionRoutesRequireAuth(t *testing.T) {
	f := setup(t)

	status, out := testsupport.Do(t, f.app, "GET", "/houses/owned", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_REQUIRED", out["error"])

	req := testsupport.JSONRequest(t, "GET", "/houses/owned", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: f.login(t, uuid.New())})
	status, out = testsupport.Send(t, f.app, req)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, true, out["ok"])
}

func TestExtRoutesRequireSecret(t *testing.T) {
	f := setup(t)
	path := "/ext/house/" + uuid.NewString() + "/occupy"

	status, out := testsupport.Do(t, f.app, "POST", path, map[string]string{"user_id": uuid.NewString()})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_REQUIRED", out["error"])

	req := testsupport.JSONRequest(t, "POST", path, map[string]string{"user_id": uuid.NewString()})
	req.Header.Set(middleware.ExtSecretHeader, "wrong")
	status, out = testsupport.Send(t, f.app, req)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", out["error"])

	req = testsupport.JSONRequest(t, "POST", path, map[string]string{"user_id": uuid.NewString()})
	req.Header.Set(middleware.ExtSecretHeader, "bot-secret")
	status, out = testsupport.Send(t, f.app, req)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "HOUSE_NOT_FOUND", out["error"])
}
