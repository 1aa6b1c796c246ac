package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHostState(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	workerID := "worker-1"

	tests := []struct {
		name string
		host Host
		want HostState
	}{
		{
			name: "inactive host is archived regardless of everything else",
			host: Host{IsActive: false, WorkerID: &workerID, BlockAllTraffic: true},
			want: HostStateArchived,
		},
		{
			name: "no bound worker is unprotected",
			host: Host{IsActive: true, WorkerID: nil},
			want: HostStateUnprotected,
		},
		{
			name: "block_all_traffic locks an otherwise-protected host",
			host: Host{IsActive: true, WorkerID: &workerID, BlockAllTraffic: true},
			want: HostStateLocked,
		},
		{
			name: "deployment mode with a future golive date stays in deployment",
			host: Host{
				IsActive: true, WorkerID: &workerID, DeploymentMode: true,
				GoLiveDate: timePtr(today.AddDate(0, 0, 5)),
			},
			want: HostStateDeployment,
		},
		{
			name: "deployment mode with no golive date set yet stays in deployment",
			host: Host{IsActive: true, WorkerID: &workerID, DeploymentMode: true, GoLiveDate: nil},
			want: HostStateDeployment,
		},
		{
			name: "deployment mode with golive date today or earlier is protected",
			host: Host{
				IsActive: true, WorkerID: &workerID, DeploymentMode: true,
				GoLiveDate: timePtr(today),
			},
			want: HostStateProtected,
		},
		{
			name: "deployment mode with a past golive date is protected",
			host: Host{
				IsActive: true, WorkerID: &workerID, DeploymentMode: true,
				GoLiveDate: timePtr(today.AddDate(0, 0, -1)),
			},
			want: HostStateProtected,
		},
		{
			name: "fully normal bound host is protected",
			host: Host{IsActive: true, WorkerID: &workerID},
			want: HostStateProtected,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.host.State(today))
		})
	}
}

func TestHostState_GoLiveSameDayDifferentTimeOfDay(t *testing.T) {
	t.Parallel()
	workerID := "worker-1"
	goLive := time.Date(2026, 6, 15, 23, 0, 0, 0, time.UTC)
	host := Host{IsActive: true, WorkerID: &workerID, DeploymentMode: true, GoLiveDate: &goLive}

	// "today" earlier in the same calendar day as golive_date: still in
	// deployment, since golive_date keeps its time of day and is compared
	// against the start of today's date.
	assert.Equal(t, HostStateDeployment, host.State(time.Date(2026, 6, 15, 1, 0, 0, 0, time.UTC)))
	// The next day: protected.
	assert.Equal(t, HostStateProtected, host.State(time.Date(2026, 6, 16, 0, 0, 1, 0, time.UTC)))
}

func TestUser_EffectiveDisplayName(t *testing.T) {
	t.Parallel()

	named := User{Username: "alice", DisplayName: "Alice Liddell"}
	assert.Equal(t, "Alice Liddell", named.EffectiveDisplayName())

	unnamed := User{Username: "alice"}
	assert.Equal(t, "alice", unnamed.EffectiveDisplayName(), "falls back to the username")
}

func TestSetupToken_Valid(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token SetupToken
		want  bool
	}{
		{
			name:  "unconsumed, unexpired, under max uses",
			token: SetupToken{ExpiresAt: now.Add(time.Hour), CurrentUses: 0, MaxUses: 1},
			want:  true,
		},
		{
			name:  "consumed token is invalid",
			token: SetupToken{Consumed: true, ExpiresAt: now.Add(time.Hour), CurrentUses: 0, MaxUses: 1},
			want:  false,
		},
		{
			name:  "expired token is invalid",
			token: SetupToken{ExpiresAt: now.Add(-time.Second), CurrentUses: 0, MaxUses: 1},
			want:  false,
		},
		{
			name:  "uses at limit is invalid",
			token: SetupToken{ExpiresAt: now.Add(time.Hour), CurrentUses: 1, MaxUses: 1},
			want:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.token.Valid(now))
		})
	}
}

func TestWebhookToken_Valid(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&WebhookToken{ExpiresAt: nil}).Valid(now), "no expiry never expires")
	assert.True(t, (&WebhookToken{ExpiresAt: timePtr(now.Add(time.Minute))}).Valid(now))
	assert.False(t, (&WebhookToken{ExpiresAt: timePtr(now.Add(-time.Minute))}).Valid(now))
	assert.False(t, (&WebhookToken{ExpiresAt: timePtr(now)}).Valid(now), "expiry is exclusive")
}

func timePtr(t time.Time) *time.Time { return &t }
