package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/export"
	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/kv"
	"github.com/five82/tripsync/internal/legacy"
	"github.com/five82/tripsync/internal/localstore"
	"github.com/five82/tripsync/internal/remote"
	"github.com/five82/tripsync/internal/syncqueue"
)

// ErrNotFound is returned when neither the local store nor the remote knows
// an itinerary.
var ErrNotFound = localstore.ErrNotFound

// FallbackRecorder counts calls answered from local data. It is satisfied by
// *metrics.Collector.
type FallbackRecorder interface {
	Fallback(op string)
}

// Options wires a Mirror. Local, KV, Queue and Remote are required.
type Options struct {
	Local   *localstore.Store
	KV      *kv.Store
	Queue   *syncqueue.Queue
	Remote  remote.Service
	IDs     itinerary.IDGenerator
	Metrics FallbackRecorder
	Logger  *zap.Logger
	Now     func() time.Time
}

// Mirror combines the local store, the remote service and the sync queue.
type Mirror struct {
	local    *localstore.Store
	kv       *kv.Store
	queue    *syncqueue.Queue
	remote   remote.Service
	ids      itinerary.IDGenerator
	metrics  FallbackRecorder
	migrator *legacy.Migrator
	logger   *zap.Logger
	now      func() time.Time
}

type nopRecorder struct{}

func (nopRecorder) Fallback(string) {}

// New returns a Mirror.
func New(opts Options) (*Mirror, error) {
	switch {
	case opts.Local == nil:
		return nil, errors.New("mirror: local store required")
	case opts.KV == nil:
		return nil, errors.New("mirror: kv store required")
	case opts.Queue == nil:
		return nil, errors.New("mirror: sync queue required")
	case opts.Remote == nil:
		return nil, errors.New("mirror: remote service required")
	}
	if opts.IDs == nil {
		opts.IDs = &itinerary.TimeIDs{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		local:    opts.Local,
		kv:       opts.KV,
		queue:    opts.Queue,
		remote:   opts.Remote,
		ids:      opts.IDs,
		metrics:  opts.Metrics,
		migrator: legacy.NewMigrator(opts.KV, opts.Local, logger),
		logger:   logger.Named("mirror"),
		now:      opts.Now,
	}, nil
}

// FetchAll returns every itinerary. With the remote reachable the local store
// is replaced by the remote list, with queued writes laid on top so changes
// not yet replayed stay visible. Otherwise the local copy is returned.
func (m *Mirror) FetchAll(ctx context.Context) ([]itinerary.Record, error) {
	records, err := m.remote.List(ctx)
	if err == nil {
		records = m.overlayPending(ctx, records)
		for i := range records {
			if strings.TrimSpace(records[i].ID) == "" {
				records[i].ID = m.ids.Next()
			}
		}
		if err := m.local.ClearAndReplace(ctx, records); err != nil {
			m.logger.Warn("failed to refresh local store from remote", zap.Error(err))
		}
		return records, nil
	}

	m.logger.Info("remote list failed, serving local copy", zap.Error(err))
	m.metrics.Fallback("list")

	records, err = m.local.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records, nil
	}
	return m.bootstrap(ctx)
}

// overlayPending applies queued itinerary writes to a remote listing.
func (m *Mirror) overlayPending(ctx context.Context, records []itinerary.Record) []itinerary.Record {
	pending, err := m.queue.Pending(ctx)
	if err != nil {
		m.logger.Warn("failed to read sync queue for overlay", zap.Error(err))
		return records
	}
	if len(pending) == 0 {
		return records
	}

	index := make(map[string]int, len(records))
	for i, rec := range records {
		index[rec.ID] = i
	}
	deleted := map[string]bool{}
	for _, op := range pending {
		if op.Resource != itinerary.ResourceItinerary {
			continue
		}
		if op.Kind == itinerary.OpDelete {
			deleted[op.ResourceID] = true
			continue
		}
		rec, err := op.Record()
		if err != nil {
			m.logger.Warn("skipping undecodable queued operation", zap.String("op", op.String()), zap.Error(err))
			continue
		}
		if rec.ID == "" {
			rec.ID = op.ResourceID
		}
		delete(deleted, rec.ID)
		if i, ok := index[rec.ID]; ok {
			records[i] = rec
			continue
		}
		index[rec.ID] = len(records)
		records = append(records, rec)
	}
	if len(deleted) == 0 {
		return records
	}

	kept := records[:0]
	for _, rec := range records {
		if !deleted[rec.ID] {
			kept = append(kept, rec)
		}
	}
	return kept
}

// bootstrap runs once per device: migrate the legacy list, then seed the
// demo set if the store is still empty.
func (m *Mirror) bootstrap(ctx context.Context) ([]itinerary.Record, error) {
	_, done, err := m.kv.Get(ctx, kv.KeyBootstrapped)
	if err != nil {
		return nil, err
	}
	if done {
		return []itinerary.Record{}, nil
	}

	res, err := m.migrator.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	if res.Migrated == 0 {
		seed := itinerary.DefaultSeed()
		if err := m.local.ClearAndReplace(ctx, seed); err != nil {
			return nil, err
		}
		m.logger.Info("seeded demo itineraries", zap.Int("count", len(seed)))
	}
	if err := m.kv.Set(ctx, kv.KeyBootstrapped, m.now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return m.local.GetAll(ctx)
}

// Save creates rec when it has no id and updates it otherwise. The record is
// written locally whether or not the remote accepted it; a rejected or
// unreachable write is queued. The stored record is returned.
func (m *Mirror) Save(ctx context.Context, rec itinerary.Record) (itinerary.Record, error) {
	rec = rec.Clone()
	if rec.SavedAt == "" {
		rec.SavedAt = m.now().UTC().Format(time.RFC3339)
	}
	kind := itinerary.OpUpdate
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = m.ids.Next()
		kind = itinerary.OpCreate
	}

	var (
		stored itinerary.Record
		err    error
	)
	if kind == itinerary.OpCreate {
		stored, err = m.remote.Create(ctx, rec)
	} else {
		stored, err = m.remote.Update(ctx, rec)
	}

	switch {
	case err != nil:
		m.logger.Info("remote save failed, queueing",
			zap.String("id", rec.ID), zap.String("kind", string(kind)), zap.Error(err))
		m.metrics.Fallback("save")
		op, opErr := itinerary.NewRecordOp(kind, rec)
		if opErr != nil {
			return itinerary.Record{}, opErr
		}
		if _, qErr := m.queue.Enqueue(ctx, op); qErr != nil {
			return itinerary.Record{}, qErr
		}
	case stored.ID != rec.ID:
		m.logger.Warn("remote returned a different id, keeping local id",
			zap.String("id", rec.ID), zap.String("remote_id", stored.ID))
	default:
		rec = stored
	}

	if _, err := m.local.Put(ctx, rec); err != nil {
		return itinerary.Record{}, err
	}
	return rec, nil
}

// Delete removes the itinerary locally and on the remote, queueing the remote
// delete when it fails.
func (m *Mirror) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("itinerary id required")
	}
	if err := m.remote.Delete(ctx, id); err != nil {
		m.logger.Info("remote delete failed, queueing", zap.String("id", id), zap.Error(err))
		m.metrics.Fallback("delete")
		if _, qErr := m.queue.Enqueue(ctx, itinerary.NewDeleteOp(id)); qErr != nil {
			return qErr
		}
	}
	return m.local.DeleteByID(ctx, id)
}

// GetByID reads the local store first and falls back to the remote, caching
// what it finds.
func (m *Mirror) GetByID(ctx context.Context, id string) (itinerary.Record, error) {
	rec, err := m.local.GetByID(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return itinerary.Record{}, err
	}

	rec, rerr := m.remote.Get(ctx, id)
	if rerr != nil {
		m.logger.Debug("remote get failed", zap.String("id", id), zap.Error(rerr))
		return itinerary.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if _, err := m.local.Put(ctx, rec); err != nil {
		return itinerary.Record{}, err
	}
	return rec, nil
}

// Search filters the FetchAll result.
func (m *Mirror) Search(ctx context.Context, c itinerary.Criteria) ([]itinerary.Record, error) {
	records, err := m.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return itinerary.Filter(records, c), nil
}

// Migrate copies the legacy key-value list into the local store.
func (m *Mirror) Migrate(ctx context.Context) (legacy.Result, error) {
	return m.migrator.Migrate(ctx)
}

// Enqueue records an operation for later replay.
func (m *Mirror) Enqueue(ctx context.Context, op itinerary.Operation) (itinerary.Operation, error) {
	return m.queue.Enqueue(ctx, op)
}

// Drain replays queued operations. See syncqueue.Queue.Drain.
func (m *Mirror) Drain(ctx context.Context) (syncqueue.DrainResult, error) {
	return m.queue.Drain(ctx)
}

// SaveProfile caches the profile locally and pushes it to the remote,
// queueing the update when the remote does not take it.
func (m *Mirror) SaveProfile(ctx context.Context, payload json.RawMessage) error {
	return m.saveDocument(ctx, itinerary.ResourceProfile, kv.KeyUserProfile, payload, m.remote.UpdateProfile)
}

// SaveSettings is SaveProfile for user settings.
func (m *Mirror) SaveSettings(ctx context.Context, payload json.RawMessage) error {
	return m.saveDocument(ctx, itinerary.ResourceSettings, kv.KeyUserSettings, payload, m.remote.UpdateSettings)
}

// Profile returns the cached profile. ok is false when none was saved.
func (m *Mirror) Profile(ctx context.Context) (json.RawMessage, bool, error) {
	return m.cachedDocument(ctx, kv.KeyUserProfile)
}

// Settings returns the cached settings. ok is false when none were saved.
func (m *Mirror) Settings(ctx context.Context) (json.RawMessage, bool, error) {
	return m.cachedDocument(ctx, kv.KeyUserSettings)
}

func (m *Mirror) saveDocument(
	ctx context.Context,
	resource itinerary.Resource,
	key string,
	payload json.RawMessage,
	push func(context.Context, json.RawMessage) error,
) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%s: invalid JSON payload", resource)
	}
	if err := m.kv.Set(ctx, key, string(payload)); err != nil {
		return err
	}
	if err := push(ctx, payload); err != nil {
		m.logger.Info("remote update failed, queueing", zap.String("resource", string(resource)), zap.Error(err))
		m.metrics.Fallback(string(resource))
		op := itinerary.Operation{Kind: itinerary.OpUpdate, Resource: resource, Payload: payload}
		if _, qErr := m.queue.Enqueue(ctx, op); qErr != nil {
			return qErr
		}
	}
	return nil
}

func (m *Mirror) cachedDocument(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, ok, err := m.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return json.RawMessage(value), true, nil
}

// Share asks the remote for a share link. It needs the remote to be
// reachable; errors are returned as-is.
func (m *Mirror) Share(ctx context.Context, id string, req remote.ShareRequest) (remote.ShareLink, error) {
	return m.remote.Share(ctx, id, req)
}

// PDF returns the remote-rendered PDF, or renders the local copy when the
// remote cannot provide one.
func (m *Mirror) PDF(ctx context.Context, id string) ([]byte, error) {
	doc, err := m.remote.PDF(ctx, id)
	if err == nil {
		return doc, nil
	}
	m.logger.Info("remote pdf failed, rendering locally", zap.String("id", id), zap.Error(err))
	m.metrics.Fallback("pdf")

	rec, lerr := m.local.GetByID(ctx, id)
	if lerr != nil {
		return nil, lerr
	}
	return export.PDF(rec, export.Options{Now: m.now})
}
