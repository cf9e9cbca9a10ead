// Package sync reconciles the harvested timetable against the remote
// calendar and orchestrates full runs. The hard part — computing what to
// change — is a pure function from two event sets to a plan; applying the
// plan is a separate, effectful step.
package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"golang.org/x/sync/errgroup"

	"celsync/internal/gcal"
	"celsync/internal/timetable"
)

// Operation names one kind of calendar write.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// UpdateOp rewrites an existing remote event with new field values.
type UpdateOp struct {
	RemoteID string
	Event    timetable.Event
}

// DeleteOp removes a remote event.
type DeleteOp struct {
	RemoteID string
	Key      string
}

// SyncPlan is the minimal set of operations that makes the remote calendar
// match the desired event set. The three lists are disjoint: no event
// appears in more than one.
type SyncPlan struct {
	Creates []timetable.Event
	Updates []UpdateOp
	Deletes []DeleteOp
}

// Empty reports whether the plan contains no operations. Running a sync
// twice against an unchanged source must produce an empty plan the second
// time; that is the tool's central guarantee.
func (p SyncPlan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// OpFailure records one failed apply operation with enough detail to
// diagnose and safely re-run.
type OpFailure struct {
	Op  Operation
	Key string
	Err error
}

// SyncReport summarises an apply pass.
type SyncReport struct {
	Created  int
	Updated  int
	Deleted  int
	Failures []OpFailure
}

// Plan diffs the desired canonical events against the remote calendar's
// current contents.
//
//   - keys only in desired become creates
//   - keys in both with differing display fields become updates; identical
//     ones are no-ops and stay out of the plan entirely
//   - keys only in existing become deletes (a cancelled class propagates as
//     removal)
//
// Remote events without an identity key were not created by this tool and
// are left untouched. Duplicate remote events under one key (which a
// completed sync never leaves behind) collapse: the first is kept for
// comparison, the rest are deleted. If the desired slice ever carries two
// events under one key, the later one wins the field comparison.
func Plan(desired []timetable.Event, existing []gcal.RemoteEvent) SyncPlan {
	desiredByKey := make(map[string]timetable.Event, len(desired))
	var keyOrder []string
	for _, ev := range desired {
		if _, seen := desiredByKey[ev.Key]; !seen {
			keyOrder = append(keyOrder, ev.Key)
		}
		desiredByKey[ev.Key] = ev
	}

	existingByKey := make(map[string]gcal.RemoteEvent, len(existing))
	var plan SyncPlan
	for _, remote := range existing {
		if remote.Key == "" {
			continue
		}
		if _, dup := existingByKey[remote.Key]; dup {
			plan.Deletes = append(plan.Deletes, DeleteOp{RemoteID: remote.ID, Key: remote.Key})
			continue
		}
		existingByKey[remote.Key] = remote
	}

	for _, key := range keyOrder {
		ev := desiredByKey[key]
		remote, exists := existingByKey[key]
		if !exists {
			plan.Creates = append(plan.Creates, ev)
			continue
		}
		if !fieldsEqual(ev, remote) {
			plan.Updates = append(plan.Updates, UpdateOp{RemoteID: remote.ID, Event: ev})
		}
	}

	for _, remote := range existing {
		if remote.Key == "" {
			continue
		}
		if _, wanted := desiredByKey[remote.Key]; wanted {
			continue
		}
		if kept, ok := existingByKey[remote.Key]; !ok || kept.ID != remote.ID {
			continue // duplicate already queued above
		}
		plan.Deletes = append(plan.Deletes, DeleteOp{RemoteID: remote.ID, Key: remote.Key})
	}

	return plan
}

func fieldsEqual(ev timetable.Event, remote gcal.RemoteEvent) bool {
	return ev.Title == remote.Title &&
		ev.Location == remote.Location &&
		ev.Description == remote.Description &&
		ev.Start.Equal(remote.Start) &&
		ev.End.Equal(remote.End)
}

// Reconciler applies sync plans to one target calendar.
type Reconciler struct {
	cal        gcal.Calendar
	calendarID string
	workers    int
	logger     *slog.Logger
}

// NewReconciler creates a reconciler for the given calendar. workers bounds
// the concurrency within each apply phase; values below 1 mean sequential.
func NewReconciler(cal gcal.Calendar, calendarID string, workers int, logger *slog.Logger) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cal: cal, calendarID: calendarID, workers: workers, logger: logger}
}

// Reconcile lists the remote calendar, plans against the desired set, and
// applies the plan. The returned error covers only the initial listing;
// per-operation failures are in the report.
func (r *Reconciler) Reconcile(ctx context.Context, desired []timetable.Event) (SyncPlan, SyncReport, error) {
	existing, err := r.cal.ListEvents(ctx, r.calendarID)
	if err != nil {
		return SyncPlan{}, SyncReport{}, err
	}

	plan := Plan(desired, existing)
	r.logger.Info("computed sync plan",
		"creates", len(plan.Creates), "updates", len(plan.Updates), "deletes", len(plan.Deletes),
		"remote", len(existing))

	report := r.Apply(ctx, plan)
	return plan, report, nil
}

// Apply executes the plan: all creates, then all updates, then all deletes,
// so no event is transiently absent from the calendar. Operations within a
// phase target distinct identity keys and run with bounded concurrency;
// one failing does not block the others. Cancellation is honoured between
// operations, never mid-write.
func (r *Reconciler) Apply(ctx context.Context, plan SyncPlan) SyncReport {
	var report SyncReport
	var mu stdsync.Mutex

	record := func(op Operation, key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failures = append(report.Failures, OpFailure{Op: op, Key: key, Err: err})
			r.logger.Warn("apply operation failed", "op", op, "key", key, "error", err)
			return
		}
		switch op {
		case OpCreate:
			report.Created++
		case OpUpdate:
			report.Updated++
		case OpDelete:
			report.Deleted++
		}
	}

	r.phase(ctx, len(plan.Creates), func(i int) {
		ev := plan.Creates[i]
		_, err := r.cal.CreateEvent(ctx, r.calendarID, ev)
		record(OpCreate, ev.Key, err)
	})

	r.phase(ctx, len(plan.Updates), func(i int) {
		op := plan.Updates[i]
		err := r.cal.UpdateEvent(ctx, r.calendarID, op.RemoteID, op.Event)
		record(OpUpdate, op.Event.Key, err)
	})

	r.phase(ctx, len(plan.Deletes), func(i int) {
		op := plan.Deletes[i]
		err := r.cal.DeleteEvent(ctx, r.calendarID, op.RemoteID)
		record(OpDelete, op.Key, err)
	})

	return report
}

// phase runs n operations with the reconciler's worker limit, skipping
// whatever has not started once the context is cancelled. Operation
// failures are recorded by the callback, not propagated, so a phase always
// attempts every operation it can.
func (r *Reconciler) phase(ctx context.Context, n int, run func(i int)) {
	if n == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			run(i)
			return nil
		})
	}
	_ = g.Wait()
}
