// Package publisher owns the authoring side of fence-set distribution: it
// loads a fence set into its store, computes a Merkle-rooted manifest over
// it, signs that manifest with an Ed25519 key, diffs it against the
// previously published version, and writes the snapshot/delta/manifest
// files a CDN serves to devices.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iannil/geofence-engine/pkg/binarydiff"
	"github.com/iannil/geofence-engine/pkg/distcodec"
	"github.com/iannil/geofence-engine/pkg/distmodel"
	"github.com/iannil/geofence-engine/pkg/engine"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/merkle"
	"github.com/iannil/geofence-engine/pkg/signing"
	"github.com/iannil/geofence-engine/pkg/store"
)

// Publisher manages the published version history of a fence set: the
// store of current fences, the signing key, and the output directory a
// static file server or CDN exposes to devices.
type Publisher struct {
	store          *store.SQLiteStore
	keyPair        *signing.KeyPair
	currentVersion uint64
	mu             sync.RWMutex
	baseDir        string
	log            zerolog.Logger
}

// Config is the configuration for a Publisher.
type Config struct {
	StorePath  string // path to the SQLite database
	PrivateKey []byte // Ed25519 private key for signing
	OutputDir  string // directory for snapshot/delta/manifest output
}

// Initialize creates a fresh store at cfg.StorePath, discarding any
// existing database file. Callers use this for `fence-publish init`; an
// existing deployment should use NewPublisher directly instead.
func Initialize(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("publisher: config is required")
	}
	if cfg.StorePath != "" {
		if err := os.Remove(cfg.StorePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("publisher: remove existing store: %w", err)
		}
	}
	st, err := store.Open(ctx, &store.Config{Path: cfg.StorePath})
	if err != nil {
		return fmt.Errorf("publisher: open store: %w", err)
	}
	defer st.Close()
	return st.SetVersion(ctx, 0)
}

// NewPublisher opens or creates the publisher's store and derives its
// signing key pair from cfg.PrivateKey.
func NewPublisher(ctx context.Context, cfg *Config) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("publisher: config is required")
	}

	st, err := store.Open(ctx, &store.Config{Path: cfg.StorePath})
	if err != nil {
		return nil, fmt.Errorf("publisher: open store: %w", err)
	}

	publicKey := ed25519PublicFromPrivate(cfg.PrivateKey)
	keyPair, err := signing.DeriveKeyPair(publicKey, cfg.PrivateKey)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("publisher: invalid key pair: %w", err)
	}

	p := &Publisher{
		store:   st,
		keyPair: keyPair,
		baseDir: cfg.OutputDir,
		log:     log.With().Str("component", "publisher").Logger(),
	}

	version, err := st.GetVersion(ctx)
	if err != nil {
		version = 0
		if err := st.SetVersion(ctx, version); err != nil {
			st.Close()
			return nil, fmt.Errorf("publisher: set initial version: %w", err)
		}
	}
	p.currentVersion = version
	p.log.Debug().Uint64("version", version).Msg("publisher opened")

	return p, nil
}

// ed25519PublicFromPrivate derives the public half of a standard 64-byte
// Ed25519 private key, so callers only need to configure the private key.
func ed25519PublicFromPrivate(privateKey []byte) []byte {
	if len(privateKey) != signing.PrivateKeySize {
		return nil
	}
	return []byte(privateKey[32:])
}

// GetCurrentVersion returns the current published version number.
func (p *Publisher) GetCurrentVersion() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentVersion
}

// PublishResult describes the files and manifest produced by a publish.
type PublishResult struct {
	Version      uint64
	Manifest     *distmodel.Manifest
	SnapshotPath string
	DeltaPath    string
}

// PublishNewVersion signs a manifest over the Merkle root of items, writes
// the version's snapshot file, and, if a previous version exists,
// computes and writes a binary delta against it too.
//
// Unlike a scheme that signs each fence individually, the manifest
// signature alone commits to every fence's content through the Merkle
// root, so a device that trusts the manifest signature transitively
// trusts every leaf without per-fence signatures to verify.
func (p *Publisher) PublishNewVersion(ctx context.Context, items []distmodel.DistFenceItem) (*PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	newVersion := p.currentVersion + 1
	plog := p.log.With().Uint64("version", newVersion).Int("fences", len(items)).Logger()

	rootHash, err := merkle.ComputeRootHash(items)
	if err != nil {
		return nil, fmt.Errorf("publisher: build merkle tree: %w", err)
	}

	newSet := distmodel.DistFenceSet{Version: newVersion, CreatedTS: time.Now().Unix(), Items: items}
	snapshotData, err := json.Marshal(newSet)
	if err != nil {
		return nil, fmt.Errorf("publisher: marshal snapshot: %w", err)
	}

	manifest := distmodel.Manifest{
		Version:      newVersion,
		Timestamp:    time.Now().Unix(),
		RootHash:     rootHash[:],
		SnapshotURL:  fmt.Sprintf("/snapshots/v%d.json", newVersion),
		SnapshotSize: uint64(len(snapshotData)),
		SnapshotHash: signing.ComputeSHA256(snapshotData),
		Message:      fmt.Sprintf("version %d - %d fences", newVersion, len(items)),
	}

	signed, err := signing.SignManifest(p.keyPair, manifest)
	if err != nil {
		return nil, fmt.Errorf("publisher: sign manifest: %w", err)
	}
	manifest = signed

	if err := p.store.SetManifest(ctx, &manifest); err != nil {
		return nil, fmt.Errorf("publisher: save manifest: %w", err)
	}
	if err := p.store.SetVersion(ctx, newVersion); err != nil {
		return nil, fmt.Errorf("publisher: update version: %w", err)
	}
	p.currentVersion = newVersion

	snapshotPath := filepath.Join(p.baseDir, fmt.Sprintf("v%d.json", newVersion))
	if err := os.MkdirAll(filepath.Dir(snapshotPath), 0755); err != nil {
		return nil, fmt.Errorf("publisher: create output dir: %w", err)
	}
	if err := os.WriteFile(snapshotPath, snapshotData, 0644); err != nil {
		return nil, fmt.Errorf("publisher: write snapshot: %w", err)
	}

	manifestPath := filepath.Join(p.baseDir, "manifest.json")
	if err := writeManifest(&manifest, manifestPath); err != nil {
		return nil, fmt.Errorf("publisher: write manifest: %w", err)
	}

	var deltaPath string
	if newVersion > 1 {
		oldItems, err := p.store.ListFences(ctx)
		if err == nil && len(oldItems) > 0 {
			oldSet := distmodel.DistFenceSet{Version: newVersion - 1, Items: oldItems}
			delta, err := binarydiff.Diff(oldSet, newSet)
			if err == nil {
				deltaPath = fmt.Sprintf("/patches/v%d_to_v%d.bin", newVersion-1, newVersion)
				deltaFullPath := filepath.Join(p.baseDir, deltaPath)
				if err := os.MkdirAll(filepath.Dir(deltaFullPath), 0755); err != nil {
					return nil, fmt.Errorf("publisher: create patches dir: %w", err)
				}
				f, err := os.Create(deltaFullPath)
				if err != nil {
					return nil, fmt.Errorf("publisher: create delta file: %w", err)
				}
				writeErr := binarydiff.WriteDeltaFile(oldSet, newSet, f)
				f.Close()
				if writeErr != nil {
					return nil, fmt.Errorf("publisher: write delta: %w", writeErr)
				}

				manifest.DeltaURL = deltaPath
				manifest.DeltaSize = uint64(len(delta.DiffData))
				manifest.DeltaHash = delta.DiffHash

				signed, err := signing.SignManifest(p.keyPair, manifest)
				if err != nil {
					return nil, fmt.Errorf("publisher: re-sign manifest with delta info: %w", err)
				}
				manifest = signed
				if err := writeManifest(&manifest, manifestPath); err != nil {
					return nil, fmt.Errorf("publisher: update manifest with delta info: %w", err)
				}
				if err := p.store.SetManifest(ctx, &manifest); err != nil {
					return nil, fmt.Errorf("publisher: save updated manifest: %w", err)
				}
				plog.Info().Str("delta", deltaPath).Uint64("delta_bytes", manifest.DeltaSize).Msg("delta written")
			} else {
				plog.Warn().Err(err).Msg("skipping delta: diff failed")
			}
		}
	}

	// Replace stored fences with the new version's set so the next publish
	// diffs against what was actually shipped, not an in-memory guess.
	existing, err := p.store.ListFences(ctx)
	if err == nil {
		for _, item := range existing {
			p.store.DeleteFence(ctx, item.ID)
		}
	}
	for _, item := range items {
		if err := p.store.AddFence(ctx, item); err != nil {
			return nil, fmt.Errorf("publisher: persist fence %q: %w", item.ID, err)
		}
	}

	plog.Info().Str("snapshot", store.SnapshotSizeHuman(&manifest)).Msg("published")

	return &PublishResult{Version: newVersion, Manifest: &manifest, SnapshotPath: snapshotPath, DeltaPath: deltaPath}, nil
}

func writeManifest(manifest *distmodel.Manifest, path string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadVersion returns every fence item currently in the store.
func (p *Publisher) LoadVersion(ctx context.Context) ([]distmodel.DistFenceItem, error) {
	return p.store.ListFences(ctx)
}

// AddFence adds a new fence to the working set, ahead of the next publish.
func (p *Publisher) AddFence(ctx context.Context, item distmodel.DistFenceItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("publisher: invalid fence: %w", err)
	}
	return p.store.AddFence(ctx, item)
}

// UpdateFence adds or updates a fence in the working set.
func (p *Publisher) UpdateFence(ctx context.Context, item distmodel.DistFenceItem) error {
	if _, err := p.store.GetFence(ctx, item.ID); err != nil {
		return p.store.AddFence(ctx, item)
	}
	return p.store.UpdateFence(ctx, item)
}

// RemoveFence removes a fence from the working set.
func (p *Publisher) RemoveFence(ctx context.Context, id string) error {
	return p.store.DeleteFence(ctx, id)
}

// QueryAtPoint reports whether (lat, lon) lies inside any stored fence,
// returning the highest-priority fence that contains it, if any. The
// store's R-Tree narrows candidates; exact containment is decided by
// pkg/engine after decoding each candidate via pkg/distcodec. This lets a
// publisher sanity-check a fence set before shipping it.
func (p *Publisher) QueryAtPoint(ctx context.Context, lat, lon float64) (inside bool, matched *distmodel.DistFenceItem, err error) {
	candidates, err := p.store.QueryAtPoint(ctx, lat, lon)
	if err != nil {
		return false, nil, fmt.Errorf("publisher: query failed: %w", err)
	}

	pos := engine.Position{
		LatE9: geomath.DegToE9(lat),
		LonE9: geomath.DegToE9(lon),
		AltMM: geomath.AltitudeAbsent,
	}
	provider := geodesic.Default

	var best *distmodel.DistFenceItem
	for i := range candidates {
		item := candidates[i]
		f, err := distcodec.DistToFence(item)
		if err != nil {
			continue
		}
		result := engine.Evaluate(f.Snapshot(), true, pos, provider)
		if result.State != engine.StateInside {
			continue
		}
		if best == nil || item.Priority > best.Priority {
			best = &item
		}
	}

	return best != nil, best, nil
}

// GetFence retrieves a fence by ID.
func (p *Publisher) GetFence(ctx context.Context, id string) (distmodel.DistFenceItem, error) {
	return p.store.GetFence(ctx, id)
}

// ListFences returns all fences in the working set.
func (p *Publisher) ListFences(ctx context.Context) ([]distmodel.DistFenceItem, error) {
	return p.store.ListFences(ctx)
}

// DeleteFence is an alias for RemoveFence, kept for symmetry with ListFences/GetFence.
func (p *Publisher) DeleteFence(ctx context.Context, id string) error {
	return p.RemoveFence(ctx, id)
}

// GetManifest returns the most recently published manifest.
func (p *Publisher) GetManifest(ctx context.Context) (*distmodel.Manifest, error) {
	return p.store.GetManifest(ctx)
}

// SyncResult describes the outcome of comparing a remote manifest against
// the publisher's local version.
type SyncResult struct {
	UpToDate       bool
	CurrentVersion uint64
	RemoteVersion  uint64
	DeltaAvailable bool
}

// Sync compares a remote manifest's version against the local one. It
// does not itself fetch or apply fence data — pkg/sync owns that on the
// device side, calling back into UpdateFence/RemoveFence once it has
// decoded the payload.
func (p *Publisher) Sync(remoteManifest *distmodel.Manifest) *SyncResult {
	p.mu.RLock()
	defer p.mu.RUnlock()

	localVer := p.currentVersion
	remoteVer := remoteManifest.Version

	if remoteVer <= localVer {
		return &SyncResult{UpToDate: true, CurrentVersion: localVer, RemoteVersion: remoteVer}
	}
	return &SyncResult{
		UpToDate:       false,
		CurrentVersion: localVer,
		RemoteVersion:  remoteVer,
		DeltaAvailable: remoteManifest.DeltaURL != "",
	}
}

// Close releases the publisher's store.
func (p *Publisher) Close() error {
	return p.store.Close()
}
