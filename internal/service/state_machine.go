package service

import (
	"fmt"
	"sort"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

// Edge is one permitted submission state transition.
type Edge struct {
	Action       models.TransitionAction
	From         models.SubmissionState
	To           models.SubmissionState
	Capability   Capability
	OwnerOnly    bool
	NoteRequired bool
	Audit        models.AuditAction
	// Notify writes an outbox row so the dispatcher fans the entry out.
	Notify bool
	// Promote materialises a publication inside the transition transaction.
	Promote bool
	// Requeue resets the queue position and clears any assignment.
	Requeue bool
	// Reviewer edges respect the queue assignment.
	Reviewer bool
}

var transitionEdges = map[models.TransitionAction]Edge{
	models.ActionApprove: {
		Action:     models.ActionApprove,
		From:       models.StatePending,
		To:         models.StateApproved,
		Capability: CapSubmissionReview,
		Audit:      models.AuditActionApproved,
		Notify:     true,
		Promote:    true,
		Reviewer:   true,
	},
	models.ActionReject: {
		Action:       models.ActionReject,
		From:         models.StatePending,
		To:           models.StateRejected,
		Capability:   CapSubmissionReview,
		NoteRequired: true,
		Audit:        models.AuditActionRejected,
		Notify:       true,
		Reviewer:     true,
	},
	models.ActionRequestRevision: {
		Action:       models.ActionRequestRevision,
		From:         models.StatePending,
		To:           models.StateNeedsRevision,
		Capability:   CapSubmissionReview,
		NoteRequired: true,
		Audit:        models.AuditActionRevisionRequested,
		Notify:       true,
		Reviewer:     true,
	},
	models.ActionWithdraw: {
		Action:     models.ActionWithdraw,
		From:       models.StatePending,
		To:         models.StateWithdrawn,
		Capability: CapSubmissionManageOwn,
		OwnerOnly:  true,
		Audit:      models.AuditActionWithdrawn,
	},
	models.ActionResubmit: {
		Action:     models.ActionResubmit,
		From:       models.StateNeedsRevision,
		To:         models.StatePending,
		Capability: CapSubmissionManageOwn,
		OwnerOnly:  true,
		Audit:      models.AuditActionResubmitted,
		Notify:     true,
		Requeue:    true,
	},
}

// EdgeFor returns the edge for action.
func EdgeFor(action models.TransitionAction) (Edge, bool) {
	edge, ok := transitionEdges[action]
	return edge, ok
}

// NextState applies action to from without any authorization.
func NextState(from models.SubmissionState, action models.TransitionAction) (models.SubmissionState, error) {
	edge, ok := transitionEdges[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q", action)
	}
	if edge.From != from {
		return "", fmt.Errorf("%s is not allowed from %s", action, from)
	}
	return edge.To, nil
}

// ReplayState folds an audit trail into the state it implies. Entries are
// folded in id order, which is commit order for a submission's transitions.
// Annotations and queue bookkeeping (from == to) do not move the state.
func ReplayState(entries []models.AuditEntry) (models.SubmissionState, error) {
	ordered := make([]models.AuditEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var state models.SubmissionState
	for i, entry := range ordered {
		if entry.FromState == nil {
			if i != 0 || entry.Action != models.AuditActionCreated {
				return "", fmt.Errorf("entry %d: creation must be the first entry", entry.ID)
			}
			state = entry.ToState
			continue
		}
		if i == 0 {
			return "", fmt.Errorf("entry %d: trail does not start with creation", entry.ID)
		}
		if !entry.IsTransition() {
			continue
		}
		if *entry.FromState != state {
			return "", fmt.Errorf("entry %d: expected from %s, trail is at %s", entry.ID, *entry.FromState, state)
		}
		if !transitionAllowed(*entry.FromState, entry.ToState) {
			return "", fmt.Errorf("entry %d: %s -> %s is not an edge", entry.ID, *entry.FromState, entry.ToState)
		}
		state = entry.ToState
	}
	if state == "" {
		return "", fmt.Errorf("empty audit trail")
	}
	return state, nil
}

func transitionAllowed(from, to models.SubmissionState) bool {
	for _, edge := range transitionEdges {
		if edge.From == from && edge.To == to {
			return true
		}
	}
	return false
}
