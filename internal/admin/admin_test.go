package admin

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
	"github.com/sunrayhq/control-plane/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(t.Context(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)
	return NewService(st, audit.NewLogger(st)), st
}

func TestCreateAPIKey_AutoGeneratesWhenAbsent(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	k, err := svc.CreateAPIKey(ctx, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, k.Key)
	assert.Equal(t, "all", k.Scopes)

	got, err := st.GetAPIKeyByKey(ctx, k.Key)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestRegenerateAPIKey_InvalidatesOldValue(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	k, err := svc.CreateAPIKey(ctx, "", "hosts:read")
	require.NoError(t, err)
	oldValue := k.Key

	regenerated, err := svc.RegenerateAPIKey(ctx, k.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldValue, regenerated.Key)

	_, err = st.GetAPIKeyByKey(ctx, oldValue)
	assert.True(t, errors.Is(err, store.ErrNotFound), "the old key value must no longer resolve")

	got, err := st.GetAPIKeyByKey(ctx, regenerated.Key)
	require.NoError(t, err)
	assert.Equal(t, "hosts:read", got.Scopes, "scopes survive regeneration")
}

func TestDeleteAPIKey_MissingKeyIsNotFound(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	err := svc.DeleteAPIKey(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	k, err := svc.CreateAPIKey(ctx, "", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAPIKey(ctx, k.ID))
	_, err = st.GetAPIKeyByID(ctx, k.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCreateWorker_RequiresNameAndExistingKey(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.CreateWorker(ctx, "", "edge", "https://w", "whatever")
	require.Error(t, err)

	_, err = svc.CreateWorker(ctx, "edge-1", "edge", "https://w", "no-such-key")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	k, err := svc.CreateAPIKey(ctx, "", "")
	require.NoError(t, err)
	w, err := svc.CreateWorker(ctx, "edge-1", "edge", "https://w", k.ID)
	require.NoError(t, err)
	assert.Equal(t, k.ID, w.APIKeyID)
}

func TestRevokePasskey_RemovesCredential(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	u := &models.User{ID: uuid.NewString(), Username: "alice", Email: "alice@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, u))
	p := &models.Passkey{
		ID: uuid.NewString(), UserID: u.ID, CredentialID: "cred-1",
		PublicKey: "pub", HostDomain: "app.example.com",
	}
	require.NoError(t, st.CreatePasskey(ctx, p))

	require.NoError(t, svc.RevokePasskey(ctx, "cred-1", "device lost"))
	_, err := st.GetPasskeyByCredentialID(ctx, "cred-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestAuthorizeUserForHost_RecordsMembership(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	u := &models.User{ID: uuid.NewString(), Username: "bob", Email: "bob@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, u))
	h := &models.Host{ID: uuid.NewString(), Domain: "app.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))

	require.NoError(t, svc.AuthorizeUserForHost(ctx, u.ID, h.ID))
	ids, err := st.UserAuthorizedHostIDs(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{h.ID}, ids)
}

func TestCreateWebhookToken_EnforcesTokenSourceInvariant(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	h := &models.Host{ID: uuid.NewString(), Domain: "hooks.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))

	_, err := svc.CreateWebhookToken(ctx, h.ID, "ci", "", "", models.TokenSourceHeader, "", nil)
	require.Error(t, err, "token_source=header requires header_name")

	_, err = svc.CreateWebhookToken(ctx, h.ID, "ci", "X-Hook-Token", "", models.TokenSourceParam, "", nil)
	require.Error(t, err, "token_source=param requires param_name")

	_, err = svc.CreateWebhookToken(ctx, h.ID, "ci", "", "", models.TokenSourceBoth, "", nil)
	require.Error(t, err, "token_source=both requires at least one of header_name/param_name")

	_, err = svc.CreateWebhookToken(ctx, h.ID, "ci", "X-Hook-Token", "", models.TokenSource("cookie"), "", nil)
	require.Error(t, err, "unknown token_source is rejected")

	tok, err := svc.CreateWebhookToken(ctx, h.ID, "ci", "X-Hook-Token", "", models.TokenSourceHeader, "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token, "secret is auto-generated")

	got, err := st.GetWebhookTokenByToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenSourceHeader, got.TokenSource)
}

func TestCreateAccessRule_CompilesBeforePersisting(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	h := &models.Host{ID: uuid.NewString(), Domain: "rules.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))

	_, err := svc.CreateAccessRule(ctx, h.ID, "cidr", "not-an-ip")
	require.Error(t, err, "malformed CIDR must never be persisted")
	rules, err := st.ListAccessRulesByHost(ctx, h.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, err = svc.CreateAccessRule(ctx, h.ID, "expr", `ip == `)
	require.Error(t, err, "malformed CEL expression must never be persisted")

	_, err = svc.CreateAccessRule(ctx, h.ID, "sticker", "whatever")
	require.Error(t, err, "unknown rule types are rejected")

	rule, err := svc.CreateAccessRule(ctx, h.ID, "cidr", "10.0.0.0/8")
	require.NoError(t, err)
	urlRule, err := svc.CreateAccessRule(ctx, h.ID, "public_url_pattern", "/public/*")
	require.NoError(t, err)

	rules, err = st.ListAccessRulesByHost(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	ids := []string{rules[0].ID, rules[1].ID}
	assert.Contains(t, ids, rule.ID)
	assert.Contains(t, ids, urlRule.ID)
}

func TestRegenerateWebhookToken_ReplacesSecret(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := t.Context()

	h := &models.Host{ID: uuid.NewString(), Domain: "hooks.example.com", BackendURL: "https://backend", IsActive: true}
	require.NoError(t, st.CreateHost(ctx, h))
	tok := &models.WebhookToken{
		ID: uuid.NewString(), HostID: h.ID, Name: "ci", Token: "old-secret",
		HeaderName: "X-Hook-Token", TokenSource: models.TokenSourceHeader,
	}
	require.NoError(t, st.CreateWebhookToken(ctx, tok))

	regenerated, err := svc.RegenerateWebhookToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "old-secret", regenerated.Token)

	_, err = st.GetWebhookTokenByToken(ctx, "old-secret")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
