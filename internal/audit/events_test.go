package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_KnownEventTypes(t *testing.T) {
	t.Parallel()
	known := []EventType{
		EventAuthSuccess, EventSetupTokenGenerated, EventEmailOTPLockout,
		EventSessionRevoked, EventCacheNuclearClear, EventWorkerRegistrationConflict,
		EventHostGoliveTransition, EventAuditRetentionPruned,
	}
	for _, e := range known {
		require.NoError(t, Validate(e), "expected %q to be a valid event type", e)
	}
}

func TestValidate_RejectsUnknownEventType(t *testing.T) {
	t.Parallel()
	err := Validate(EventType("not.a.real.event"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestValidate_ClosedSetSize(t *testing.T) {
	t.Parallel()
	// validEventTypes is built once from a literal slice in init(); if a
	// constant were ever listed twice the map would simply collapse the
	// duplicate, so this guards count drift rather than duplication itself.
	assert.Greater(t, len(validEventTypes), 40)
}
