package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("clinicsync/backend/sync")

// LocalStore is the local side of a reconciliation: keyed rows, checkpoints
// and the deletions still to be pushed
type LocalStore interface {
	backend.LocalStore
	SetCheckpoint(ctx context.Context, table string, at time.Time) error
	Tombstones(ctx context.Context, table string) (map[string]time.Time, error)
	ClearTombstone(ctx context.Context, table string, id string) error
}

// Reconciler compares local and remote record sets per table and copies the
// newer or missing side across (last write wins on updated_at)
type Reconciler struct {
	local  LocalStore
	remote backend.RemoteStore
	now    func() time.Time
}

// NewReconciler creates a reconciler. remote may be nil, in which case every
// table reconciles to an empty result without touching either store.
func NewReconciler(local LocalStore, remote backend.RemoteStore) *Reconciler {
	return &Reconciler{
		local:  local,
		remote: remote,
		now:    time.Now,
	}
}

// TableResult contains statistics about one table's reconciliation
type TableResult struct {
	Table      string        `json:"table" yaml:"table"`
	Uploaded   int           `json:"uploaded" yaml:"uploaded"`
	Downloaded int           `json:"downloaded" yaml:"downloaded"`
	Conflicts  int           `json:"conflicts" yaml:"conflicts"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Err        error         `json:"-" yaml:"-"`
}

// Changed reports whether the pass moved any record
func (r TableResult) Changed() bool {
	return r.Uploaded > 0 || r.Downloaded > 0
}

// snapshot is one side of a table keyed by id
type snapshot map[string]backend.Record

func (r *Reconciler) load(t backend.Table, rows []backend.Row) (snapshot, error) {
	snap := make(snapshot, len(rows))
	for _, row := range rows {
		rec, err := t.Decode(row)
		if err != nil {
			return nil, err
		}
		snap[rec.RecordID()] = rec
	}
	return snap, nil
}

// ReconcileTable runs one pass over a table. Errors abort this table only;
// the counts reached before the failure are kept in the result.
func (r *Reconciler) ReconcileTable(ctx context.Context, table string) (result TableResult) {
	start := time.Now()
	result.Table = table

	ctx, span := tracer.Start(ctx, "sync.table")
	span.SetAttributes(attribute.String("table", table))
	defer func() {
		result.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("uploaded", result.Uploaded),
			attribute.Int("downloaded", result.Downloaded),
			attribute.Int("conflicts", result.Conflicts),
		)
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
		span.End()
	}()

	if r.remote == nil {
		return result
	}

	t, err := backend.LookupTable(table)
	if err != nil {
		result.Err = err
		return result
	}

	// Phase 1: snapshot both sides
	localRows, err := r.local.SelectAll(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("failed to read local %s: %w", table, err)
		return result
	}
	remoteRows, err := r.remote.SelectAll(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("failed to read remote %s: %w", table, err)
		return result
	}
	local, err := r.load(t, localRows)
	if err != nil {
		result.Err = fmt.Errorf("local %w", err)
		return result
	}
	remote, err := r.load(t, remoteRows)
	if err != nil {
		result.Err = fmt.Errorf("remote %w", err)
		return result
	}
	tombstones, err := r.local.Tombstones(ctx, table)
	if err != nil {
		result.Err = err
		return result
	}
	parents := r.parentLookup(ctx)

	// Phase 2: local records, pushed when missing or newer, pulled when older
	for _, id := range sortedIDs(local) {
		localRec := local[id]
		remoteRec, exists := remote[id]

		if !exists {
			if err := r.upload(ctx, t, localRec, false, parents); err != nil {
				result.Err = err
				return result
			}
			result.Uploaded++
			continue
		}

		switch backend.CompareStamps(localRec.UpdatedAt(), remoteRec.UpdatedAt()) {
		case 1:
			result.Conflicts++
			if err := r.upload(ctx, t, localRec, true, parents); err != nil {
				result.Err = err
				return result
			}
			result.Uploaded++
		case -1:
			result.Conflicts++
			if err := r.download(ctx, t, remoteRec); err != nil {
				result.Err = err
				return result
			}
			result.Downloaded++
		}
	}

	// Phase 3: remote-only records, pulled unless deleted here since.
	// A remote edit made after the local delete wins and is pulled back.
	for _, id := range sortedIDs(remote) {
		if _, ok := local[id]; ok {
			continue
		}
		deletedAt, deleted := tombstones[id]
		if deleted && backend.CompareStamps(remote[id].UpdatedAt(), backend.FormatStamp(deletedAt)) <= 0 {
			if err := r.remote.Delete(ctx, table, id); err != nil && !isNotFound(err) {
				result.Err = fmt.Errorf("failed to delete remote %s/%s: %w", table, id, err)
				return result
			}
			result.Uploaded++
			continue
		}
		if err := r.download(ctx, t, remote[id]); err != nil {
			result.Err = err
			return result
		}
		result.Downloaded++
	}
	for _, id := range sortedKeys(tombstones) {
		if err := r.local.ClearTombstone(ctx, table, id); err != nil {
			result.Err = err
			return result
		}
	}

	// Phase 4: checkpoint
	if err := r.local.SetCheckpoint(ctx, table, r.now()); err != nil {
		result.Err = err
		return result
	}

	if result.Changed() {
		utils.Debugf("[Sync] %s: %d uploaded, %d downloaded, %d conflicts",
			table, result.Uploaded, result.Downloaded, result.Conflicts)
	}
	return result
}

// upload writes a local record to the remote, normalizing legacy references.
// An insert that collides with a row created remotely since the snapshot
// becomes an update.
func (r *Reconciler) upload(ctx context.Context, t backend.Table, rec backend.Record, exists bool, parents backend.ParentLookup) error {
	row, err := t.Encode(rec)
	if err != nil {
		return err
	}
	row = t.NormalizeForUpload(row, parents)

	if exists {
		err = r.remote.Update(ctx, t.Name, rec.RecordID(), row)
	} else {
		err = r.remote.Insert(ctx, t.Name, row)
		if isConflict(err) {
			utils.Debugf("[Sync] %s/%s appeared remotely since the snapshot, updating", t.Name, rec.RecordID())
			err = r.remote.Update(ctx, t.Name, rec.RecordID(), row)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", t.Name, rec.RecordID(), err)
	}
	return nil
}

// download overwrites the local copy with a remote record
func (r *Reconciler) download(ctx context.Context, t backend.Table, rec backend.Record) error {
	row, err := t.Encode(rec)
	if err != nil {
		return err
	}
	if err := r.local.Upsert(ctx, t.Name, row); err != nil {
		return fmt.Errorf("failed to download %s/%s: %w", t.Name, rec.RecordID(), err)
	}
	return nil
}

// parentLookup answers whether a parent row is stored locally under an id.
// Parent tables sync first, so such a row is on the remote under the same id.
func (r *Reconciler) parentLookup(ctx context.Context) backend.ParentLookup {
	seen := make(map[string]bool)
	return func(table, id string) bool {
		key := table + "/" + id
		if found, ok := seen[key]; ok {
			return found
		}
		row, err := r.local.Get(ctx, table, id)
		found := err == nil && row != nil
		seen[key] = found
		return found
	}
}

func isConflict(err error) bool {
	var be *backend.BackendError
	return errors.As(err, &be) && be.IsConflict()
}

func isNotFound(err error) bool {
	var be *backend.BackendError
	return errors.As(err, &be) && be.IsNotFound()
}
