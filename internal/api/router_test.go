package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/session"
	"github.com/sunrayhq/control-plane/internal/snapshot"
	"github.com/sunrayhq/control-plane/internal/store/sqlite"
	"github.com/sunrayhq/control-plane/internal/token"
	"github.com/sunrayhq/control-plane/internal/worker"
	"github.com/sunrayhq/control-plane/internal/workerclient"
)

// noopWorkerRPC is a stub fan-out client; the router tests below never
// exercise revocation against a real bound host, so it never needs to do
// anything but satisfy the interface.
type noopWorkerRPC struct{}

func (noopWorkerRPC) ClearCache(context.Context, string, string, workerclient.Invalidation, bool) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *sqlite.Store, *models.APIKey) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(t.Context(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)

	auditLogger := audit.NewLogger(st)
	setupIssuer := token.NewIssuer(st, auditLogger)
	emailIssuer := token.NewEmailIssuer(st, auditLogger)
	sessions := session.NewEngine(st, auditLogger, noopWorkerRPC{})
	registrar := worker.NewRegistrar(st, auditLogger)
	snapshots := snapshot.NewBuilder(st)

	server := NewServer(st, auditLogger, setupIssuer, emailIssuer, sessions, registrar, snapshots, nil)

	key := &models.APIKey{ID: uuid.NewString(), Key: uuid.NewString(), Scopes: "all", IsActive: true}
	require.NoError(t, st.CreateAPIKey(t.Context(), key))

	return server, st, key
}

func doRequest(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus_Unauthenticated(t *testing.T) {
	t.Parallel()
	server, _, _ := newTestServer(t)
	rec := doRequest(t, server.Router(), http.MethodGet, "/sunray-srvr/v1/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestBearerAuth_RejectsMissingAndInvalidKeys(t *testing.T) {
	t.Parallel()
	server, _, _ := newTestServer(t)
	router := server.Router()

	rec := doRequest(t, router, http.MethodGet, "/sunray-srvr/v1/health", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/sunray-srvr/v1/health", "not-a-real-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleUsersCheck(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()

	u := &models.User{ID: uuid.NewString(), Username: "alice", Email: "alice@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(t.Context(), u))

	rec := doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/users/check", key.Key, usersCheckRequest{Username: "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp usersCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)

	rec = doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/users/check", key.Key, usersCheckRequest{Username: "nobody"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
}

func TestHandleUsersCheck_RejectsEmptyUsername(t *testing.T) {
	t.Parallel()
	server, _, key := newTestServer(t)
	rec := doRequest(t, server.Router(), http.MethodPost, "/sunray-srvr/v1/users/check", key.Key, usersCheckRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConfigSnapshot_ReturnsActiveEntitiesOnly(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	active := &models.User{ID: uuid.NewString(), Username: "active-user", Email: "a@example.com", IsActive: true}
	inactive := &models.User{ID: uuid.NewString(), Username: "inactive-user", Email: "i@example.com", IsActive: false}
	require.NoError(t, st.CreateUser(ctx, active))
	require.NoError(t, st.CreateUser(ctx, inactive))

	host := &models.Host{ID: uuid.NewString(), Domain: "app.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, host))

	rec := doRequest(t, router, http.MethodGet, "/sunray-srvr/v1/config", key.Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc snapshot.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	_, hasActive := doc.Users["active-user"]
	_, hasInactive := doc.Users["inactive-user"]
	assert.True(t, hasActive)
	assert.False(t, hasInactive)
	require.Len(t, doc.Hosts, 1)
	assert.Equal(t, "app.example.com", doc.Hosts[0].Domain)
}

func TestSetupTokenValidate_EndToEnd(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	u := &models.User{ID: uuid.NewString(), Username: "bob", Email: "bob@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, u))
	h := &models.Host{ID: uuid.NewString(), Domain: "app.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))

	_, plain, err := server.setup.GenerateSetupToken(ctx, u.ID, h.ID, "laptop", 48, 1, "")
	require.NoError(t, err)

	req := setupTokenValidateRequest{Username: "bob", TokenHash: token.HashSetupToken(plain), ClientIP: "10.0.0.1"}
	rec := doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/setup-tokens/validate", key.Key, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp setupTokenValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
	require.NotNil(t, resp.User)
	assert.Equal(t, "bob", resp.User.Username)

	// Second consumption of a max_uses=1 token must fail.
	rec = doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/setup-tokens/validate", key.Key, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid or expired token", resp.Error)
}

func TestHandleUsersValidate_PasskeyScopedToRequestingHost(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	u := &models.User{ID: uuid.NewString(), Username: "carol", Email: "carol@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, u))

	other := &models.Host{ID: uuid.NewString(), Domain: "other.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, other))
	target := &models.Host{ID: uuid.NewString(), Domain: "app.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, target))

	require.NoError(t, st.CreatePasskey(ctx, &models.Passkey{
		ID: uuid.NewString(), UserID: u.ID, CredentialID: uuid.NewString(),
		PublicKey: "pub", HostDomain: other.Domain, Name: "laptop",
	}))

	rec := doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/users/validate", key.Key, usersValidateRequest{Username: "carol", Host: other.Domain})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp usersValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasPasskey, "passkey registered for this host must be reported")

	rec = doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/users/validate", key.Key, usersValidateRequest{Username: "carol", Host: target.Domain})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasPasskey, "passkey registered for a different host must not unlock this one")
}

func TestEmailOTP_RequestAndValidateRoundTrip(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	u := &models.User{ID: uuid.NewString(), Username: "dora", Email: "dora@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, u))
	h := &models.Host{ID: uuid.NewString(), Domain: "otp.example.com", BackendURL: "https://backend", IsActive: true, SessionDurationS: 3600}
	require.NoError(t, st.CreateHost(ctx, h))
	require.NoError(t, st.AuthorizeUserForHost(ctx, u.ID, h.ID))

	rec := doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/email-otp/request", key.Key, emailOTPRequestRequest{
		Email: "dora@example.com", HostID: h.ID, BrowserTokenHash: "sha256:browser",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var reqResp emailOTPRequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reqResp))
	require.NotNil(t, reqResp.OTPCode)
	require.NotEmpty(t, reqResp.OTPRequestID)

	rec = doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/email-otp/validate", key.Key, emailOTPValidateRequest{
		Email: "dora@example.com", OTPCode: *reqResp.OTPCode, OTPRequestID: reqResp.OTPRequestID,
		BrowserTokenHash: "sha256:browser", HostDomain: h.Domain,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var valResp emailOTPValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &valResp))
	assert.True(t, valResp.Valid)
	assert.Equal(t, 3600, valResp.SessionDurationS)
}

func TestEmailOTP_RequestForUnknownEmailHasSameShape(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	h := &models.Host{ID: uuid.NewString(), Domain: "shape.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))

	rec := doRequest(t, router, http.MethodPost, "/sunray-srvr/v1/email-otp/request", key.Key, emailOTPRequestRequest{
		Email: "ghost@example.com", HostID: h.ID, BrowserTokenHash: "sha256:browser",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp emailOTPRequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.OTPCode, "unknown email never yields a code")
	assert.NotEmpty(t, resp.OTPRequestID, "response shape matches the known-user case")
}

func TestRegisterWorker_AcceptsWorkerNameFromHeader(t *testing.T) {
	t.Parallel()
	server, st, key := newTestServer(t)
	router := server.Router()
	ctx := t.Context()

	w := &models.Worker{ID: uuid.NewString(), Name: "edge-1", WorkerType: "edge", WorkerURL: "https://w"}
	require.NoError(t, st.CreateWorker(ctx, w))
	h := &models.Host{ID: uuid.NewString(), Domain: "hdr.example.com", BackendURL: "https://backend", IsActive: true, WorkerID: &w.ID}
	require.NoError(t, st.CreateHost(ctx, h))

	body, err := json.Marshal(registerWorkerRequest{Hostname: "hdr.example.com"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sunray-srvr/v1/workers/register", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+key.Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-ID", "edge-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp registerWorkerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, w.ID, resp.WorkerID)
}

func TestWebhookTrackUsage_RejectsUnknownToken(t *testing.T) {
	t.Parallel()
	server, _, key := newTestServer(t)
	rec := doRequest(t, server.Router(), http.MethodPost, "/sunray-srvr/v1/webhooks/track-usage", key.Key, webhookTrackUsageRequest{Token: "does-not-exist"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterWorker_RejectsMissingFields(t *testing.T) {
	t.Parallel()
	server, _, key := newTestServer(t)
	rec := doRequest(t, server.Router(), http.MethodPost, "/sunray-srvr/v1/workers/register", key.Key, registerWorkerRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
