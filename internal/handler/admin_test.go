package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"activation-portal/internal/model"
	"activation-portal/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t, nil)
	userToken := f.login(t, userEmail, userPassword)
	adminToken := f.login(t, adminEmail, adminPassword)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"regular user", userToken, http.StatusForbidden},
		{"administrator", adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/v1/admin/keys", "/api/v1/admin/logs", "/api/v1/admin/statistics", "/api/v1/admin/operation-logs"} {
				status, _ := f.do(t, request{method: http.MethodGet, path: path, token: tt.token})
				assert.Equal(t, tt.wantStatus, status, path)
			}
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   LoginInput{Email: adminEmail, Password: "wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])

	status, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: LoginInput{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   LoginInput{Email: "ADMIN@example.com ", Password: adminPassword},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isAdmin"])
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, adminEmail, user["email"])
	assert.NotContains(t, user, "password")
	token := body["token"].(string)

	status, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/keys", token: token})
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/logout", token: token})
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/keys", token: token})
	assert.Equal(t, http.StatusUnauthorized, status, "signed out tokens are rejected")

	var logins []model.LoginLog
	require.NoError(t, f.db.Order("id ASC").Find(&logins).Error)
	require.Len(t, logins, 2)
	assert.Equal(t, "failed", logins[0].Status)
	assert.Equal(t, "success", logins[1].Status)
}

func TestValidateAdmin(t *testing.T) {
	f := newFixture(t, nil)
	userToken := f.login(t, userEmail, userPassword)
	adminToken := f.login(t, adminEmail, adminPassword)

	status, body := f.do(t, request{method: http.MethodGet, path: "/api/v1/auth/validate-admin"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["isAdmin"])

	status, body = f.do(t, request{method: http.MethodGet, path: "/api/v1/auth/validate-admin", token: userToken})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["isAdmin"])

	status, body = f.do(t, request{method: http.MethodGet, path: "/api/v1/auth/validate-admin", token: adminToken})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isAdmin"])
	assert.NotEmpty(t, body["message"])
}

func TestKeyManagement(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, adminEmail, adminPassword)

	status, created := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys",
		token:  token,
		body:   KeyInput{Value: testKey, Description: "retail", MaxUsage: intPtr(3)},
	})
	require.Equal(t, http.StatusCreated, status, created)
	assert.Equal(t, testKey, created["key_value"])
	assert.Equal(t, true, created["is_active"], "keys are active unless stated otherwise")
	id := created["id"].(string)

	status, _ = f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys",
		token:  token,
		body:   KeyInput{Value: testKey},
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys",
		token:  token,
		body:   KeyInput{Value: "  "},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, got := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/keys/" + id, token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "retail", got["description"])

	inactive := false
	status, updated := f.do(t, request{
		method: http.MethodPut,
		path:   "/api/v1/admin/keys/" + id,
		token:  token,
		body:   KeyInput{Value: testKey, Description: "reissued", MaxUsage: intPtr(5), Active: &inactive},
	})
	require.Equal(t, http.StatusOK, status, updated)
	assert.Equal(t, "reissued", updated["description"])
	assert.Equal(t, float64(5), updated["max_usage"])
	assert.Equal(t, false, updated["is_active"])

	status, toggled := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/keys/" + id + "/toggle", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, toggled["is_active"])

	status, bulk := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys/bulk",
		token:  token,
		body:   BulkKeyInput{Keys: "BULK1\n\n BULK2 \nBULK3\n", MaxUsage: intPtr(1)},
	})
	require.Equal(t, http.StatusCreated, status, bulk)
	assert.Equal(t, float64(3), bulk["created"])

	status, _ = f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys/bulk",
		token:  token,
		body:   BulkKeyInput{Keys: "BULK4\nBULK1"},
	})
	assert.Equal(t, http.StatusConflict, status)

	status, list := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/keys?search=bulk&page_size=2", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), list["total"])
	assert.Len(t, list["items"], 2)
	assert.Equal(t, float64(2), list["size"])

	status, _ = f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/keys/" + id, token: token})
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/keys/" + id, token: token})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/keys/" + id + "/toggle", token: token})
	assert.Equal(t, http.StatusNotFound, status)

	var ops []model.OperationLog
	require.NoError(t, f.db.Order("id ASC").Find(&ops).Error)
	actions := make([]string, 0, len(ops))
	for _, op := range ops {
		actions = append(actions, op.Action)
	}
	assert.Equal(t, []string{
		model.ActionKeyCreate,
		model.ActionKeyUpdate,
		model.ActionKeyToggle,
		model.ActionKeyBulkCreate,
		model.ActionKeyDelete,
	}, actions)
}

func TestToggledOffKeyCannotRedeem(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, adminEmail, adminPassword)
	key := f.key(t, service.KeyInput{Active: true})

	status, _ := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/keys/" + key.ID + "/toggle", token: token})
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/get-cid",
		body:   GetCIDInput{ActivationKey: testKey, IID: testIID},
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, float64(http.StatusUnauthorized), body["errorCode"])
}

func TestUsageLogsAndStatistics(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, adminEmail, adminPassword)
	key := f.key(t, service.KeyInput{MaxUsage: intPtr(1), Active: true})
	f.key(t, service.KeyInput{Value: "IDLE-KEY", Active: false})

	redeem := func() {
		f.do(t, request{method: http.MethodPost, path: "/api/v1/get-cid", body: GetCIDInput{ActivationKey: testKey, IID: testIID}})
	}
	redeem() // success
	redeem() // quota exceeded
	f.do(t, request{method: http.MethodPost, path: "/api/v1/get-cid", body: GetCIDInput{ActivationKey: "UNKNOWN", IID: "7654321"}})

	status, stats := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/statistics", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), stats["totalKeys"])
	assert.Equal(t, float64(1), stats["activeKeys"])
	assert.Equal(t, float64(1), stats["inactiveKeys"])
	assert.Equal(t, float64(1), stats["successfulRequests"])
	assert.Equal(t, float64(2), stats["failedRequests"])
	assert.InDelta(t, 1.0/3.0, stats["successRate"], 0.0001)

	status, logs := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/logs", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), logs["total"])

	status, logs = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/logs?success=true", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), logs["total"])
	items := logs["items"].([]any)
	entry := items[0].(map[string]any)
	assert.Equal(t, testCID, entry["cid"])
	assert.Equal(t, testKey, entry["software_keys"].(map[string]any)["key_value"])

	status, logs = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/logs?key_id=" + key.ID, token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), logs["total"])

	status, logs = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/logs?search=7654", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), logs["total"])

	status, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/logs?success=maybe", token: token})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/logs?before=yesterday", token: token})
	assert.Equal(t, http.StatusBadRequest, status)

	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	status, purged := f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/logs?before=" + tomorrow, token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), purged["deleted"])

	status, ops := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/operation-logs", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), ops["total"])
	op := ops["items"].([]any)[0].(map[string]any)
	assert.Equal(t, model.ActionLogPurge, op["action"])
}

func TestUpdateWithoutActiveFlagKeepsStoredFlag(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, adminEmail, adminPassword)
	key := f.key(t, service.KeyInput{Active: false})

	status, updated := f.do(t, request{
		method: http.MethodPut,
		path:   "/api/v1/admin/keys/" + key.ID,
		token:  token,
		body:   map[string]any{"key_value": testKey, "description": "renamed"},
	})
	require.Equal(t, http.StatusOK, status, updated)
	assert.Equal(t, "renamed", updated["description"])
	assert.Equal(t, false, updated["is_active"])

	status, body := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/get-cid",
		body:   GetCIDInput{ActivationKey: testKey, IID: testIID},
	})
	assert.Equal(t, http.StatusUnauthorized, status, body)
}

func TestOperationLogsFilterByUser(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, adminEmail, adminPassword)

	var admin, user model.User
	require.NoError(t, f.db.Where("email = ?", adminEmail).First(&admin).Error)
	require.NoError(t, f.db.Where("email = ?", userEmail).First(&user).Error)

	status, _ := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys",
		token:  token,
		body:   KeyInput{Value: testKey},
	})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, service.NewAuditLog(f.db).LogOperation(context.Background(), user.ID, model.ActionKeyUpdate, "activation_key", "", nil))

	status, ops := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/operation-logs", token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), ops["total"])

	status, ops = f.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/admin/operation-logs?user_id=%d", admin.ID), token: token})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), ops["total"])
	op := ops["items"].([]any)[0].(map[string]any)
	assert.Equal(t, model.ActionKeyCreate, op["action"])

	status, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/operation-logs?user_id=abc", token: token})
	assert.Equal(t, http.StatusBadRequest, status)
}

type recordingMirror struct {
	mu      sync.Mutex
	synced  []string
	removed []string
	done    chan struct{}
}

func (m *recordingMirror) SyncKey(ctx context.Context, key *model.ActivationKey) error {
	m.mu.Lock()
	m.synced = append(m.synced, key.Value)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *recordingMirror) RemoveKey(ctx context.Context, id string) error {
	m.mu.Lock()
	m.removed = append(m.removed, id)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *recordingMirror) wait(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("mirror was not called")
	}
}

func TestKeyChangesAreMirrored(t *testing.T) {
	mirror := &recordingMirror{done: make(chan struct{}, 4)}
	f := newFixture(t, mirror)
	token := f.login(t, adminEmail, adminPassword)

	status, created := f.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/admin/keys",
		token:  token,
		body:   KeyInput{Value: testKey},
	})
	require.Equal(t, http.StatusCreated, status)
	mirror.wait(t)

	id := created["id"].(string)
	status, _ = f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/keys/" + id, token: token})
	require.Equal(t, http.StatusOK, status)
	mirror.wait(t)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, []string{testKey}, mirror.synced)
	assert.Equal(t, []string{id}, mirror.removed)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.key(t, service.KeyInput{Active: true})
	f.do(t, request{method: http.MethodPost, path: "/api/v1/get-cid", body: GetCIDInput{ActivationKey: testKey, IID: testIID}})

	status, body := f.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw := new(strings.Builder)
	_, err = io.Copy(raw, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), `activation_redemptions_total{outcome="success"} 1`)
	assert.Contains(t, raw.String(), "activation_upstream_request_duration_seconds")
}
