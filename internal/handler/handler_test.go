package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"activation-portal/internal/auth"
	"activation-portal/internal/database"
	"activation-portal/internal/getcid"
	"activation-portal/internal/metrics"
	"activation-portal/internal/model"
	"activation-portal/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "s3cret"
	userEmail     = "user@example.com"
	userPassword  = "pa55word"
	testKey       = "ABCDE-ABCDE-ABCDE-ABCDE-ABCDE"
	testIID       = "1234567123456712345671234567"
	testCID       = "AA1111BB2222CC3333DD4444EE5555FF6666GG7777HH8888"
)

type fixture struct {
	app     *fiber.App
	db      *gorm.DB
	keys    *service.KeyStore
	metrics *metrics.Recorder

	// upstream answer for the next GetCID call
	upstreamStatus int
	upstreamBody   string
}

func newFixture(t *testing.T, mirror KeyMirror) *fixture {
	t.Helper()

	f := &fixture{
		db:             database.NewTestDB(t),
		metrics:        metrics.NewRecorder(),
		upstreamStatus: http.StatusOK,
		upstreamBody:   testCID,
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(f.upstreamStatus)
		io.WriteString(w, f.upstreamBody)
	}))
	t.Cleanup(upstream.Close)

	log := zap.NewNop()
	require.NoError(t, database.SeedAdmin(f.db, adminEmail, adminPassword, log))
	hashed, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&model.User{Email: userEmail, Password: string(hashed), Status: "active"}).Error)

	f.keys = service.NewKeyStore(f.db)
	ledger := service.NewLedger(f.db, log, f.metrics)
	client := getcid.NewClient(upstream.URL, "token")

	h := New(Deps{
		Keys:     f.keys,
		Ledger:   ledger,
		Redeemer: service.NewRedeemer(f.keys, ledger, client, log, f.metrics),
		Auth:     auth.NewService(f.db, "test-secret", time.Hour, adminEmail, log),
		Audit:    service.NewAuditLog(f.db),
		Mirror:   mirror,
		Log:      log,
	})
	f.app = NewApp(h, AppConfig{AppName: "test", CORSOrigins: "*", Metrics: f.metrics}, log)
	return f
}

func (f *fixture) key(t *testing.T, in service.KeyInput) *model.ActivationKey {
	t.Helper()
	if in.Value == "" {
		in.Value = testKey
	}
	key, err := f.keys.Create(context.Background(), in)
	require.NoError(t, err)
	return key
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (f *fixture) do(t *testing.T, r request) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	switch b := r.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   LoginInput{Email: email, Password: password},
	})
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func intPtr(n int) *int { return &n }
