package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/api"
	"github.com/charlesng35/reviewhub/internal/app"
	iauth "github.com/charlesng35/reviewhub/internal/auth"
	sharedtestutil "github.com/charlesng35/reviewhub/internal/database/testutil"
	"github.com/charlesng35/reviewhub/internal/middleware"
	"github.com/charlesng35/reviewhub/pkg/mail"
	"github.com/charlesng35/reviewhub/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Config *app.Config
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	mailer mail.Mailer
	mutate func(*app.Config)
}

// WithMailer wires a mailer into the verification service.
func WithMailer(m mail.Mailer) EnvOption {
	return func(o *envOptions) { o.mailer = m }
}

// WithConfig lets a test adjust the configuration before the router is built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(o *envOptions) { o.mutate = fn }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Verification: app.VerificationConfig{
			CodeTTL:         time.Hour,
			MaxAttempts:     3,
			DeliveryTimeout: time.Second,
			DefaultCategory: "general",
		},
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		},
	}
	if options.mutate != nil {
		options.mutate(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, options.mailer, middleware.NewMemoryRateStore())
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Config: cfg,
	}
}

// TokenFor mints an access token for a fresh user id and the given email.
func (e *Env) TokenFor(email string) (userID, token string) {
	e.T.Helper()

	userID = uuid.NewString()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    userID,
		Email:     email,
		SessionID: uuid.NewString(),
	})
	require.NoError(e.T, err)
	return userID, token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
