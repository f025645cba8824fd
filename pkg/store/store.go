// Package store provides persistent storage for distributed fence sets
// using SQLite with R-Tree spatial indexing, so a publisher or device
// agent can keep the current fence set and manifest across restarts
// without re-downloading.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

// ErrFenceNotFound is returned when a fence is not found in the store.
var ErrFenceNotFound = errors.New("fence not found")

// Store is the interface for fence-set persistence.
type Store interface {
	// Fence operations
	AddFence(ctx context.Context, item distmodel.DistFenceItem) error
	GetFence(ctx context.Context, id string) (distmodel.DistFenceItem, error)
	UpdateFence(ctx context.Context, item distmodel.DistFenceItem) error
	DeleteFence(ctx context.Context, id string) error
	ListFences(ctx context.Context) ([]distmodel.DistFenceItem, error)

	// Spatial query: candidate fences whose bounding box covers (lat, lon).
	// Callers still need pkg/engine to test exact containment — the R-Tree
	// only prunes the search to nearby candidates.
	QueryAtPoint(ctx context.Context, lat, lon float64) ([]distmodel.DistFenceItem, error)

	// Manifest operations
	GetManifest(ctx context.Context) (*distmodel.Manifest, error)
	SetManifest(ctx context.Context, manifest *distmodel.Manifest) error

	// Version management
	GetVersion(ctx context.Context) (uint64, error)
	SetVersion(ctx context.Context, version uint64) error

	Close() error
}

// boundingBox is the min/max lat/lon span of a fence item's shapes,
// computed from float-degree wire coordinates for the R-Tree index.
type boundingBox struct {
	minLat, maxLat, minLon, maxLon float64
}

func boundsOf(item distmodel.DistFenceItem) boundingBox {
	bb := boundingBox{minLat: 90, maxLat: -90, minLon: 180, maxLon: -180}
	grow := func(lat, lon float64) {
		if lat < bb.minLat {
			bb.minLat = lat
		}
		if lat > bb.maxLat {
			bb.maxLat = lat
		}
		if lon < bb.minLon {
			bb.minLon = lon
		}
		if lon > bb.maxLon {
			bb.maxLon = lon
		}
	}
	for _, s := range item.Shapes {
		switch s.Kind {
		case distmodel.ShapeKindCircle:
			if s.Center == nil {
				continue
			}
			// Approximate the circle's degree-span bounding box; callers
			// re-check exact containment, so an over-wide box only costs
			// a few extra candidates. Boxes are not wrapped at ±180°, so a
			// fence that crosses the antimeridian can be missed.
			latSpan := s.RadiusM / 110000.0
			lonSpan := latSpan / math.Max(math.Cos(s.Center.LatDeg*math.Pi/180), 1e-9)
			grow(s.Center.LatDeg-latSpan, s.Center.LonDeg-lonSpan)
			grow(s.Center.LatDeg+latSpan, s.Center.LonDeg+lonSpan)
		case distmodel.ShapeKindPolygon:
			for _, v := range s.Vertices {
				grow(v.LatDeg, v.LonDeg)
			}
		}
	}
	return bb
}

// SQLiteStore implements Store using SQLite with an R-Tree virtual table.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Config holds configuration for the SQLite store.
type Config struct {
	Path string // Path to the SQLite database file
}

// Open creates or opens an SQLite database for fence-set storage.
func Open(ctx context.Context, cfg *Config) (*SQLiteStore, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("store: config path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: cfg.Path}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fences (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			name TEXT,
			description TEXT,
			item_json TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	if err != nil {
		return fmt.Errorf("create fences table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS fence_index USING rtree(
			rowid,          -- links to fences.rowid
			minX, maxX,     -- longitude bounds
			minY, maxY      -- latitude bounds
		);
	`)
	if err != nil {
		return fmt.Errorf("create rtree table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	if err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS fences_priority_idx ON fences(priority);
		CREATE INDEX IF NOT EXISTS fences_id_idx ON fences(id);
	`)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// AddFence adds a new fence item to the store.
func (s *SQLiteStore) AddFence(ctx context.Context, item distmodel.DistFenceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("store: marshal fence: %w", err)
	}
	bb := boundsOf(item)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO fences (id, priority, name, description, item_json)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.Priority, item.Name, item.Description, string(data))
	if err != nil {
		return fmt.Errorf("store: insert fence: %w", err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: get rowid: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fence_index (rowid, minX, maxX, minY, maxY)
		VALUES (?, ?, ?, ?, ?)
	`, rowID, bb.minLon, bb.maxLon, bb.minLat, bb.maxLat)
	if err != nil {
		return fmt.Errorf("store: insert into rtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GetFence retrieves a fence item by ID.
func (s *SQLiteStore) GetFence(ctx context.Context, id string) (distmodel.DistFenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT item_json FROM fences WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return distmodel.DistFenceItem{}, ErrFenceNotFound
	}
	if err != nil {
		return distmodel.DistFenceItem{}, fmt.Errorf("store: query fence: %w", err)
	}

	var item distmodel.DistFenceItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return distmodel.DistFenceItem{}, fmt.Errorf("store: unmarshal fence: %w", err)
	}
	return item, nil
}

// UpdateFence updates an existing fence item.
func (s *SQLiteStore) UpdateFence(ctx context.Context, item distmodel.DistFenceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("store: marshal fence: %w", err)
	}
	bb := boundsOf(item)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE fences SET priority = ?, name = ?, description = ?, item_json = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, item.Priority, item.Name, item.Description, string(data), item.ID)
	if err != nil {
		return fmt.Errorf("store: update fence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFenceNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE fence_index SET minX = ?, maxX = ?, minY = ?, maxY = ?
		WHERE rowid = (SELECT rowid FROM fences WHERE id = ?)
	`, bb.minLon, bb.maxLon, bb.minLat, bb.maxLat, item.ID)
	if err != nil {
		return fmt.Errorf("store: update rtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	committed = true
	return nil
}

// DeleteFence removes a fence item from the store.
func (s *SQLiteStore) DeleteFence(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var rowID int64
	err = tx.QueryRowContext(ctx, "SELECT rowid FROM fences WHERE id = ?", id).Scan(&rowID)
	if err == sql.ErrNoRows {
		return ErrFenceNotFound
	}
	if err != nil {
		return fmt.Errorf("store: get rowid: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM fences WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete fence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFenceNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM fence_index WHERE rowid = ?", rowID); err != nil {
		return fmt.Errorf("store: delete from rtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	committed = true
	return nil
}

// ListFences returns all fence items, highest priority first.
func (s *SQLiteStore) ListFences(ctx context.Context) ([]distmodel.DistFenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT item_json FROM fences ORDER BY priority DESC")
	if err != nil {
		return nil, fmt.Errorf("store: query fences: %w", err)
	}
	defer rows.Close()

	var items []distmodel.DistFenceItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan fence: %w", err)
		}
		var item distmodel.DistFenceItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("store: unmarshal fence: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// QueryAtPoint returns candidate fence items whose bounding box covers
// (lat, lon), pruned by the R-Tree index. Exact containment is left to
// pkg/engine once the candidates are loaded via pkg/distcodec.
func (s *SQLiteStore) QueryAtPoint(ctx context.Context, lat, lon float64) ([]distmodel.DistFenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.item_json
		FROM fences f
		INNER JOIN fence_index idx ON f.rowid = idx.rowid
		WHERE idx.minX <= ? AND idx.maxX >= ? AND idx.minY <= ? AND idx.maxY >= ?
		ORDER BY f.priority DESC
	`, lon, lon, lat, lat)
	if err != nil {
		return nil, fmt.Errorf("store: query rtree: %w", err)
	}
	defer rows.Close()

	var items []distmodel.DistFenceItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan fence: %w", err)
		}
		var item distmodel.DistFenceItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("store: unmarshal fence: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetManifest retrieves the stored manifest, nil if none has been set.
func (s *SQLiteStore) GetManifest(ctx context.Context) (*distmodel.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'manifest'").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query manifest: %w", err)
	}

	var manifest distmodel.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("store: unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

// SetManifest stores a manifest, replacing any previously stored one.
func (s *SQLiteStore) SetManifest(ctx context.Context, manifest *distmodel.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("store: marshal manifest: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value, updated_at)
		VALUES ('manifest', ?, strftime('%s', 'now'))
	`, data)
	if err != nil {
		return fmt.Errorf("store: store manifest: %w", err)
	}
	return nil
}

// SnapshotSizeHuman renders a manifest's snapshot size for log lines,
// e.g. "4.2 MB".
func SnapshotSizeHuman(m *distmodel.Manifest) string {
	if m == nil {
		return "0 B"
	}
	return humanize.Bytes(m.SnapshotSize)
}

// GetVersion retrieves the current version, 0 if none has been set.
func (s *SQLiteStore) GetVersion(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version uint64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: query version: %w", err)
	}
	return version, nil
}

// SetVersion stores the current version.
func (s *SQLiteStore) SetVersion(ctx context.Context, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value, updated_at)
		VALUES ('version', ?, strftime('%s', 'now'))
	`, version)
	if err != nil {
		return fmt.Errorf("store: store version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
