// Package registry implements the Fleet Registry of §4.9: a
// gorm+sqlite observability side-database that never gates or
// participates in the capture/storage hot path.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SymbolCatalogRow is the per-symbol write-progress side-table of §3.
// Upserted by the Storage Stage after every successful write; losing
// or corrupting this table never affects capture correctness.
type SymbolCatalogRow struct {
	SymbolID        uint32 `gorm:"primaryKey"`
	FirstSequence   uint64
	LastSequence    uint64
	MessagesWritten uint64
	BytesWritten    uint64
	FirstSeen       time.Time
	LastWrite       time.Time
}

// PeerStatusRow is one observed status message from another node,
// keyed by (node_id, observed_at) so the Fleet Registry keeps a
// history rather than just the latest sample.
type PeerStatusRow struct {
	NodeID     string    `gorm:"primaryKey"`
	ObservedAt time.Time `gorm:"primaryKey"`
	Received   uint64
	Processed  uint64
	Dropped    uint64
}

// NodeIdentityRow persists this node's own uuid so it survives
// restarts, resolving §9's sender-identity open question.
type NodeIdentityRow struct {
	ID        uint `gorm:"primaryKey"`
	NodeID    string
	CreatedAt time.Time
}

// Registry owns the Symbol Catalog and Peer Status tables.
type Registry struct {
	db *gorm.DB
}

// Open creates (if needed) and migrates the sqlite database at path.
func Open(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	if err := db.AutoMigrate(&SymbolCatalogRow{}, &PeerStatusRow{}, &NodeIdentityRow{}); err != nil {
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}

	return &Registry{db: db}, nil
}

// RecordSymbolWrite upserts a symbol's write-progress row. Implements
// the storage.CatalogSink interface.
func (r *Registry) RecordSymbolWrite(symbolID uint32, seq uint64, bytesWritten int) {
	now := time.Now()
	row := SymbolCatalogRow{SymbolID: symbolID}
	r.db.First(&row, "symbol_id = ?", symbolID)

	if row.FirstSequence == 0 {
		row.FirstSequence = seq
		row.FirstSeen = now
	}
	row.LastSequence = seq
	row.MessagesWritten++
	row.BytesWritten += uint64(bytesWritten)
	row.LastWrite = now

	r.db.Save(&row)
}

// RecordPeerStatus appends one observation of a peer's status message.
func (r *Registry) RecordPeerStatus(nodeID string, received, processed, dropped uint64) error {
	row := PeerStatusRow{
		NodeID:     nodeID,
		ObservedAt: time.Now(),
		Received:   received,
		Processed:  processed,
		Dropped:    dropped,
	}
	return r.db.Create(&row).Error
}

// PeerHealth reports, for every node_id with at least one observation,
// whether its most recent observation is within staleAfter of now.
// Unlike the original's check, this keys by the real node_id read from
// the wire, so multiple peers are never folded into one health entry.
func (r *Registry) PeerHealth(now time.Time, staleAfter time.Duration) (map[string]bool, error) {
	// The plain observed_at column keeps its declared datetime type, so
	// the driver scans it into time.Time; an aggregate such as
	// MAX(observed_at) comes back as a raw string instead.
	var rows []PeerStatusRow
	err := r.db.Select("node_id, observed_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[string]time.Time)
	for _, row := range rows {
		if t, ok := latest[row.NodeID]; !ok || row.ObservedAt.After(t) {
			latest[row.NodeID] = row.ObservedAt
		}
	}

	health := make(map[string]bool, len(latest))
	for nodeID, observedAt := range latest {
		health[nodeID] = now.Sub(observedAt) <= staleAfter
	}
	return health, nil
}

// NodeID returns the persisted node identity, generating and storing
// one via generate if none exists yet.
func (r *Registry) NodeID(generate func() string) (string, error) {
	var row NodeIdentityRow
	err := r.db.First(&row).Error
	if err == nil {
		return row.NodeID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}

	row = NodeIdentityRow{NodeID: generate(), CreatedAt: time.Now()}
	if err := r.db.Create(&row).Error; err != nil {
		return "", err
	}
	return row.NodeID, nil
}

// Close releases the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
