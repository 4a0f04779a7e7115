package license

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_EnvironmentWins(t *testing.T) {
	lic := Resolve(config.LicenseConfig{Type: "freelance"}, nil)
	assert.Equal(t, TierFreelance, lic.Tier)
	require.NotNil(t, lic.MaxWorkers)
	assert.Equal(t, 3, *lic.MaxWorkers)
}

func TestResolve_DefaultIsFree(t *testing.T) {
	lic := Resolve(config.LicenseConfig{}, nil)
	assert.Equal(t, TierFree, lic.Tier)
	require.NotNil(t, lic.MaxWorkers)
	assert.Equal(t, 1, *lic.MaxWorkers)
}

func TestResolve_InvalidTypeFallsThrough(t *testing.T) {
	lic := Resolve(config.LicenseConfig{Type: "enterprise"}, nil)
	assert.Equal(t, TierFree, lic.Tier)
}

func TestResolve_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tier":"facility","note":"site license"}`), 0o644))

	lic := Resolve(config.LicenseConfig{File: path}, nil)
	assert.Equal(t, TierFacility, lic.Tier)
	assert.True(t, lic.Unlimited())
	assert.Equal(t, "site license", lic.Note)
}

func TestResolve_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tier":"facility"}`), 0o644))

	lic := Resolve(config.LicenseConfig{Type: "free", File: path}, nil)
	assert.Equal(t, TierFree, lic.Tier)
}

func TestEnforcer_CapRefusesFourthWorker(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "freelance"}, nil), nil)

	for _, id := range []string{"w1", "w2", "w3"} {
		admitted, verr := enf.Heartbeat(id, nil)
		require.True(t, admitted)
		require.Nil(t, verr)
	}

	admitted, verr := enf.Heartbeat("w4", nil)
	assert.False(t, admitted)
	require.NotNil(t, verr)
	assert.Equal(t, models.TagWorkerLimitExceeded, verr.Tag)
	assert.Contains(t, verr.Message, "3/3")

	assert.Equal(t, 3, enf.ActiveCount())
	assert.False(t, enf.IsAdmitted("w4"))

	// Repeat heartbeats of admitted workers never exceed the cap.
	admitted, _ = enf.Heartbeat("w1", nil)
	assert.True(t, admitted)
	assert.Equal(t, 3, enf.ActiveCount())
}

func TestEnforcer_UnlimitedTier(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "facility"}, nil), nil)

	for i := 0; i < 20; i++ {
		admitted, verr := enf.Heartbeat(string(rune('a'+i)), nil)
		require.True(t, admitted)
		require.Nil(t, verr)
	}
	assert.Equal(t, 20, enf.ActiveCount())
}

func TestEnforcer_DeregisterFreesSlot(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "free"}, nil), nil)

	admitted, _ := enf.Heartbeat("w1", nil)
	require.True(t, admitted)

	admitted, _ = enf.Heartbeat("w2", nil)
	assert.False(t, admitted)

	enf.Deregister("w1")
	admitted, _ = enf.Heartbeat("w2", nil)
	assert.True(t, admitted)
}

func TestEnforcer_PurgeStale(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "free"}, nil), nil)

	admitted, _ := enf.Heartbeat("w1", nil)
	require.True(t, admitted)

	// Nothing is stale yet.
	assert.Empty(t, enf.PurgeStale(time.Minute))

	purged := enf.PurgeStale(0)
	assert.Equal(t, []string{"w1"}, purged)
	assert.Zero(t, enf.ActiveCount())
}

func TestEnforcer_RefreshKeepsJobAssignment(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "free"}, nil), nil)

	jobID := models.NewUUID()
	admitted, _ := enf.Heartbeat("w1", &jobID)
	require.True(t, admitted)

	before := enf.Workers()[0].LastSeen
	time.Sleep(2 * time.Millisecond)
	enf.Refresh("w1")

	workers := enf.Workers()
	require.Len(t, workers, 1)
	assert.True(t, workers[0].LastSeen.After(before))
	assert.Equal(t, models.WorkerBusy, workers[0].State)
	require.NotNil(t, workers[0].CurrentJobID)

	// Refreshing an unknown worker never admits it.
	enf.Refresh("w2")
	assert.Equal(t, 1, enf.ActiveCount())
}

func TestEnforcer_BusyState(t *testing.T) {
	enf := NewEnforcer(Resolve(config.LicenseConfig{Type: "free"}, nil), nil)

	jobID := models.NewUUID()
	admitted, _ := enf.Heartbeat("w1", &jobID)
	require.True(t, admitted)

	workers := enf.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, models.WorkerBusy, workers[0].State)
	require.NotNil(t, workers[0].CurrentJobID)
	assert.Equal(t, jobID, *workers[0].CurrentJobID)
}
