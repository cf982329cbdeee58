package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

func TestNextState(t *testing.T) {
	cases := []struct {
		from   models.SubmissionState
		action models.TransitionAction
		want   models.SubmissionState
		ok     bool
	}{
		{models.StatePending, models.ActionApprove, models.StateApproved, true},
		{models.StatePending, models.ActionReject, models.StateRejected, true},
		{models.StatePending, models.ActionRequestRevision, models.StateNeedsRevision, true},
		{models.StatePending, models.ActionWithdraw, models.StateWithdrawn, true},
		{models.StateNeedsRevision, models.ActionResubmit, models.StatePending, true},
		{models.StateNeedsRevision, models.ActionApprove, "", false},
		{models.StateApproved, models.ActionReject, "", false},
		{models.StateRejected, models.ActionResubmit, "", false},
		{models.StateWithdrawn, models.ActionResubmit, "", false},
	}
	for _, tc := range cases {
		got, err := NextState(tc.from, tc.action)
		if !tc.ok {
			assert.Error(t, err, "%s from %s", tc.action, tc.from)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestEdgeFlags(t *testing.T) {
	approve, ok := EdgeFor(models.ActionApprove)
	require.True(t, ok)
	assert.True(t, approve.Promote)
	assert.True(t, approve.Notify)

	withdraw, _ := EdgeFor(models.ActionWithdraw)
	assert.True(t, withdraw.OwnerOnly)
	assert.False(t, withdraw.Notify)

	reject, _ := EdgeFor(models.ActionReject)
	assert.True(t, reject.NoteRequired)
	assert.False(t, reject.Promote)

	resubmit, _ := EdgeFor(models.ActionResubmit)
	assert.True(t, resubmit.Requeue)

	_, ok = EdgeFor("PUBLISH")
	assert.False(t, ok)
}

func trailEntry(id int64, action models.AuditAction, from *models.SubmissionState, to models.SubmissionState) models.AuditEntry {
	return models.AuditEntry{ID: id, Action: action, FromState: from, ToState: to}
}

func TestReplayState(t *testing.T) {
	trail := []models.AuditEntry{
		trailEntry(1, models.AuditActionCreated, nil, models.StatePending),
		trailEntry(2, models.AuditActionAssigned, statePtr(models.StatePending), models.StatePending),
		trailEntry(3, models.AuditActionRevisionRequested, statePtr(models.StatePending), models.StateNeedsRevision),
		trailEntry(4, models.AuditActionNote, statePtr(models.StateNeedsRevision), models.StateNeedsRevision),
		trailEntry(5, models.AuditActionResubmitted, statePtr(models.StateNeedsRevision), models.StatePending),
		trailEntry(6, models.AuditActionApproved, statePtr(models.StatePending), models.StateApproved),
	}
	state, err := ReplayState(trail)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, state)
}

func TestReplayStateFollowsIDOrder(t *testing.T) {
	trail := []models.AuditEntry{
		trailEntry(1, models.AuditActionCreated, nil, models.StatePending),
		trailEntry(4, models.AuditActionApproved, statePtr(models.StatePending), models.StateApproved),
		trailEntry(2, models.AuditActionRevisionRequested, statePtr(models.StatePending), models.StateNeedsRevision),
		trailEntry(3, models.AuditActionResubmitted, statePtr(models.StateNeedsRevision), models.StatePending),
	}
	state, err := ReplayState(trail)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, state)
	assert.Equal(t, int64(4), trail[1].ID, "input is left untouched")
}

func TestReplayStateRejectsBrokenTrails(t *testing.T) {
	_, err := ReplayState(nil)
	assert.Error(t, err)

	_, err = ReplayState([]models.AuditEntry{
		trailEntry(1, models.AuditActionApproved, statePtr(models.StatePending), models.StateApproved),
	})
	assert.Error(t, err, "trail must start with creation")

	_, err = ReplayState([]models.AuditEntry{
		trailEntry(1, models.AuditActionCreated, nil, models.StatePending),
		trailEntry(2, models.AuditActionApproved, statePtr(models.StatePending), models.StateApproved),
		trailEntry(3, models.AuditActionRejected, statePtr(models.StatePending), models.StateRejected),
	})
	assert.Error(t, err, "second terminal transition from a stale state")

	_, err = ReplayState([]models.AuditEntry{
		trailEntry(1, models.AuditActionCreated, nil, models.StatePending),
		trailEntry(2, models.AuditActionWithdrawn, statePtr(models.StatePending), models.StateWithdrawn),
		trailEntry(3, models.AuditActionResubmitted, statePtr(models.StateWithdrawn), models.StatePending),
	})
	assert.Error(t, err, "withdrawn is terminal")
}
