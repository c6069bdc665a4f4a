package deployment

import (
	"testing"
	"time"

	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{
		RequestID: "abc12345",
		VMName:    "demo-abc12345",
		Status:    interfaces.StatusPending,
		CreatedAt: time.Now(),
	})

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, "demo-abc12345", rec.VMName)
	assert.Equal(t, interfaces.StatusPending, rec.Status)
	assert.Equal(t, 1, store.Len())
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Get("missing")
	assert.ErrorIs(t, err, interfaces.ErrDeploymentNotFound)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusPending})

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	rec.Status = interfaces.StatusFailed
	rec.Error = "mutated"

	fresh, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusPending, fresh.Status)
	assert.Empty(t, fresh.Error)
}

func TestStoreUpdateAdvancesStatus(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusPending})

	for _, status := range []interfaces.DeploymentStatus{
		interfaces.StatusProvisioning,
		interfaces.StatusVMProvisioned,
		interfaces.StatusConfiguring,
		interfaces.StatusCompleted,
	} {
		err := store.Update("abc12345", func(r *interfaces.DeploymentRecord) {
			r.Status = status
		})
		require.NoError(t, err, "advancing to %s", status)
	}

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusCompleted, rec.Status)
}

func TestStoreUpdateRejectsRegression(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusConfiguring})

	err := store.Update("abc12345", func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusProvisioning
	})
	assert.ErrorIs(t, err, interfaces.ErrStatusRegression)

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusConfiguring, rec.Status)
}

func TestStoreUpdateRejectsLeavingTerminal(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusFailed})

	err := store.Update("abc12345", func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusCompleted
	})
	assert.ErrorIs(t, err, interfaces.ErrStatusRegression)
}

func TestStoreUpdateKeepsRecordOnRejection(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusCompleted})

	err := store.Update("abc12345", func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusFailed
		r.Error = "should not stick"
	})
	require.ErrorIs(t, err, interfaces.ErrStatusRegression)

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusCompleted, rec.Status)
	assert.Empty(t, rec.Error)
}

func TestStoreUpdateNonStatusFieldsOnly(t *testing.T) {
	store := NewStore()
	store.Put(interfaces.DeploymentRecord{RequestID: "abc12345", Status: interfaces.StatusConfiguring})

	err := store.Update("abc12345", func(r *interfaces.DeploymentRecord) {
		r.PublicAddress = "203.0.113.7"
	})
	require.NoError(t, err)

	rec, err := store.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", rec.PublicAddress)
}

func TestStoreUpdateNotFound(t *testing.T) {
	store := NewStore()
	err := store.Update("missing", func(r *interfaces.DeploymentRecord) {})
	assert.ErrorIs(t, err, interfaces.ErrDeploymentNotFound)
}
