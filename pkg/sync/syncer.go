// Package sync is the device-side counterpart to pkg/publisher: it polls a
// manifest URL, verifies its signature, downloads the delta or snapshot it
// points at, applies it to the local store, and reloads the changed
// fences into a live geofenceapi.Context.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iannil/geofence-engine/pkg/binarydiff"
	"github.com/iannil/geofence-engine/pkg/client"
	"github.com/iannil/geofence-engine/pkg/config"
	"github.com/iannil/geofence-engine/pkg/devctx"
	"github.com/iannil/geofence-engine/pkg/distcodec"
	"github.com/iannil/geofence-engine/pkg/distmodel"
	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/geofenceapi"
	"github.com/iannil/geofence-engine/pkg/merkle"
	"github.com/iannil/geofence-engine/pkg/signing"
	"github.com/iannil/geofence-engine/pkg/store"
)

// Syncer keeps a device's local store and live fence set in step with a
// published manifest. Every fence currently loaded is attached to a
// single devctx.Context owned by the Syncer; a caller that wants its own
// context should read fences back out via GetFences and attach them
// itself instead of sharing this one.
type Syncer struct {
	client     *client.Client
	store      store.Store
	cfg        *config.ClientConfig
	ctx        *devctx.Context
	currentVer uint64
	loaded     map[string]*fence.Fence // fence ID -> live, attached Fence

	lastCheck    time.Time
	lastSyncTime time.Time

	log zerolog.Logger
}

// NewSyncer creates a syncer backed by its own HTTP client and store, and
// a fresh devctx.Context bound to handle.
func NewSyncer(ctx context.Context, cfg *config.ClientConfig, handle interface{}) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sync: invalid config: %w", err)
	}

	httpClient, err := client.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("sync: create HTTP client: %w", err)
	}

	st, err := store.Open(ctx, &store.Config{Path: cfg.StorePath})
	if err != nil {
		return nil, fmt.Errorf("sync: open store: %w", err)
	}

	currentVer, err := st.GetVersion(ctx)
	if err != nil {
		currentVer = 0
	}

	devCtx := geofenceapi.ContextCreate(handle)

	s := &Syncer{
		client:     httpClient,
		store:      st,
		cfg:        cfg,
		ctx:        devCtx,
		currentVer: currentVer,
		loaded:     make(map[string]*fence.Fence),
		log:        log.With().Str("component", "syncer").Logger(),
	}

	if err := s.loadFromStore(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("sync: load store into context: %w", err)
	}

	return s, nil
}

// loadFromStore attaches every fence already in the store to s.ctx, used
// when resuming from a previously persisted version.
func (s *Syncer) loadFromStore(ctx context.Context) error {
	items, err := s.store.ListFences(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		f, err := distcodec.DistToFence(item)
		if err != nil {
			return fmt.Errorf("decode fence %q: %w", item.ID, err)
		}
		geofenceapi.ContextAttach(s.ctx, f)
		s.loaded[item.ID] = f
	}
	return nil
}

// Context returns the devctx.Context the syncer keeps fences attached to,
// so a caller can configure a callback or run ContextEvaluate against it.
func (s *Syncer) Context() *devctx.Context { return s.ctx }

// Result describes the outcome of a Sync call.
type Result struct {
	UpToDate      bool
	PreviousVer   uint64
	CurrentVer    uint64
	FencesAdded   int
	FencesRemoved int
	FencesUpdated int
	BytesDownload int
	Duration      time.Duration
	Error         error
}

// CheckForUpdates fetches and verifies the remote manifest without
// applying it, so a caller can decide whether a sync is worth the data.
func (s *Syncer) CheckForUpdates(ctx context.Context) (*distmodel.Manifest, error) {
	s.lastCheck = time.Now()
	manifest, err := s.client.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch manifest: %w", err)
	}
	return manifest, nil
}

// Sync performs a full synchronization with the remote source: fetch the
// manifest, decide delta vs. snapshot, apply it, and reload the changed
// fences into the live context.
func (s *Syncer) Sync(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{PreviousVer: s.currentVer}

	manifest, err := s.client.FetchManifest(ctx)
	if err != nil {
		result.Error = fmt.Errorf("sync: fetch manifest: %w", err)
		return result
	}
	result.CurrentVer = manifest.Version

	if manifest.Version <= s.currentVer {
		result.UpToDate = true
		return result
	}

	slog := s.log.With().Uint64("from_version", s.currentVer).Uint64("to_version", manifest.Version).Logger()
	slog.Info().Msg("new version available")

	var newItems []distmodel.DistFenceItem
	useDelta := (manifest.Version-s.currentVer) == 1 && manifest.DeltaURL != ""
	if useDelta {
		slog.Info().Str("delta_url", manifest.DeltaURL).Msg("applying delta")
		newItems, result.BytesDownload, err = s.fetchDelta(ctx, manifest)
	} else {
		slog.Info().Str("snapshot_url", manifest.SnapshotURL).Msg("applying snapshot")
		newItems, result.BytesDownload, err = s.fetchSnapshot(ctx, manifest)
	}
	if err != nil {
		result.Error = fmt.Errorf("sync: apply update: %w", err)
		return result
	}

	added, removed, updated, err := s.applyItems(ctx, newItems, manifest)
	if err != nil {
		result.Error = fmt.Errorf("sync: reload fences: %w", err)
		return result
	}
	result.FencesAdded, result.FencesRemoved, result.FencesUpdated = added, removed, updated

	s.currentVer = manifest.Version
	s.lastSyncTime = time.Now()
	result.Duration = time.Since(start)

	slog.Info().Int("added", added).Int("removed", removed).Int("updated", updated).Dur("duration", result.Duration).Msg("sync complete")

	return result
}

// fetchDelta downloads and verifies a delta against the fences currently
// in the store, returning the full item list the delta patches to.
func (s *Syncer) fetchDelta(ctx context.Context, manifest *distmodel.Manifest) ([]distmodel.DistFenceItem, int, error) {
	deltaData, err := s.client.FetchDelta(ctx, manifest.DeltaURL)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch delta: %w", err)
	}
	if len(manifest.DeltaHash) > 0 && !signing.VerifyHash(deltaData, manifest.DeltaHash) {
		return nil, 0, fmt.Errorf("delta hash verification failed")
	}

	oldItems, err := s.store.ListFences(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load current fences: %w", err)
	}
	oldSet := distmodel.DistFenceSet{Version: s.currentVer, Items: oldItems}

	delta, err := binarydiff.ReadDeltaFile(bytes.NewReader(deltaData), manifest.Version)
	if err != nil {
		return nil, 0, fmt.Errorf("parse delta: %w", err)
	}

	newItems, err := binarydiff.ApplyDelta(oldSet, delta)
	if err != nil {
		return nil, 0, fmt.Errorf("apply patch: %w", err)
	}

	return newItems, len(deltaData), nil
}

// fetchSnapshot downloads and verifies a full snapshot.
func (s *Syncer) fetchSnapshot(ctx context.Context, manifest *distmodel.Manifest) ([]distmodel.DistFenceItem, int, error) {
	snapshotData, err := s.client.FetchSnapshot(ctx, manifest.SnapshotURL)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch snapshot: %w", err)
	}
	if len(manifest.SnapshotHash) > 0 && !signing.VerifyHash(snapshotData, manifest.SnapshotHash) {
		return nil, 0, fmt.Errorf("snapshot hash verification failed")
	}

	var newSet distmodel.DistFenceSet
	if err := json.Unmarshal(snapshotData, &newSet); err != nil {
		return nil, 0, fmt.Errorf("parse snapshot: %w", err)
	}

	if len(manifest.RootHash) > 0 {
		rootHash, err := merkle.ComputeRootHash(newSet.Items)
		if err != nil {
			return nil, 0, fmt.Errorf("compute root hash: %w", err)
		}
		if !signing.VerifyHash(rootHash[:], manifest.RootHash) {
			return nil, 0, fmt.Errorf("root hash verification failed")
		}
	}

	return newSet.Items, len(snapshotData), nil
}

// applyItems reconciles newItems against what is currently loaded: every
// loaded fence is detached from the context and freed first (a Fence's
// structural mutation methods return Busy while it is attached), every
// fence in newItems is rebuilt from the wire form and reattached, whether
// or not its content changed, and the store is updated to match.
func (s *Syncer) applyItems(ctx context.Context, newItems []distmodel.DistFenceItem, manifest *distmodel.Manifest) (added, removed, updated int, err error) {
	newByID := make(map[string]distmodel.DistFenceItem, len(newItems))
	for _, item := range newItems {
		newByID[item.ID] = item
	}

	for id, f := range s.loaded {
		if _, stillPresent := newByID[id]; stillPresent {
			continue
		}
		if err := geofenceapi.ContextDetach(s.ctx, f); err != nil {
			return 0, 0, 0, fmt.Errorf("detach removed fence %q: %w", id, err)
		}
		if err := geofenceapi.FenceFree(f); err != nil {
			return 0, 0, 0, fmt.Errorf("free removed fence %q: %w", id, err)
		}
		delete(s.loaded, id)
		if err := s.store.DeleteFence(ctx, id); err != nil {
			return 0, 0, 0, fmt.Errorf("delete fence %q from store: %w", id, err)
		}
		removed++
	}

	for id, item := range newByID {
		if old, exists := s.loaded[id]; exists {
			if err := geofenceapi.ContextDetach(s.ctx, old); err != nil {
				return 0, 0, 0, fmt.Errorf("detach changed fence %q: %w", id, err)
			}
			if err := geofenceapi.FenceFree(old); err != nil {
				return 0, 0, 0, fmt.Errorf("free changed fence %q: %w", id, err)
			}
			delete(s.loaded, id)
		}

		f, err := distcodec.DistToFence(item)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("decode fence %q: %w", id, err)
		}
		geofenceapi.ContextAttach(s.ctx, f)
		s.loaded[id] = f

		if _, err := s.store.GetFence(ctx, id); err != nil {
			if err := s.store.AddFence(ctx, item); err != nil {
				return 0, 0, 0, fmt.Errorf("add fence %q to store: %w", id, err)
			}
			added++
		} else {
			if err := s.store.UpdateFence(ctx, item); err != nil {
				return 0, 0, 0, fmt.Errorf("update fence %q in store: %w", id, err)
			}
			updated++
		}
	}

	if err := s.store.SetManifest(ctx, manifest); err != nil {
		return 0, 0, 0, fmt.Errorf("save manifest: %w", err)
	}
	if err := s.store.SetVersion(ctx, manifest.Version); err != nil {
		return 0, 0, 0, fmt.Errorf("set version: %w", err)
	}

	return added, removed, updated, nil
}

// StartAutoSync runs Sync on an interval in the background until ctx is
// cancelled, reporting each result on the returned channel.
func (s *Syncer) StartAutoSync(ctx context.Context, interval time.Duration) <-chan *Result {
	results := make(chan *Result, 1)

	go func() {
		defer close(results)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		send := func(r *Result) bool {
			select {
			case results <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(s.Sync(ctx)) {
			return
		}
		for {
			select {
			case <-ticker.C:
				if !send(s.Sync(ctx)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}

// GetFences returns every fence currently loaded, by ID.
func (s *Syncer) GetFences(ctx context.Context) ([]distmodel.DistFenceItem, error) {
	return s.store.ListFences(ctx)
}

// GetCurrentVersion returns the version number currently loaded.
func (s *Syncer) GetCurrentVersion() uint64 { return s.currentVer }

// GetLastCheckTime returns the time of the last update check.
func (s *Syncer) GetLastCheckTime() time.Time { return s.lastCheck }

// GetLastSyncTime returns the time of the last successful sync.
func (s *Syncer) GetLastSyncTime() time.Time { return s.lastSyncTime }

// Close detaches and frees every loaded fence, releases the context, and
// closes the store.
func (s *Syncer) Close() error {
	for id, f := range s.loaded {
		geofenceapi.ContextDetach(s.ctx, f)
		geofenceapi.FenceFree(f)
		delete(s.loaded, id)
	}
	geofenceapi.ContextFree(s.ctx)
	return s.store.Close()
}
