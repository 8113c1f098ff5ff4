package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// archivedSession is the cold-storage row for a conversation snapshot. The
// snapshot is stored as opaque JSON so schema changes in Snapshot do not
// require migrations.
type archivedSession struct {
	SessionID string `gorm:"primaryKey"`
	Payload   []byte
	UpdatedAt time.Time
}

func (archivedSession) TableName() string { return "archived_sessions" }

// ArchiveStore persists finished or idle sessions to SQLite. It implements
// SessionStore so it can be swapped in wherever the hot store is used.
type ArchiveStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewArchiveStore opens (or creates) the SQLite database at path and migrates
// the archive table. Use ":memory:" for an ephemeral store.
func NewArchiveStore(path string, logger *zap.Logger) (*ArchiveStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := db.AutoMigrate(&archivedSession{}); err != nil {
		return nil, fmt.Errorf("migrate archive db: %w", err)
	}
	return &ArchiveStore{db: db, logger: logger}, nil
}

// Save upserts the snapshot by session ID.
func (a *ArchiveStore) Save(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	row := archivedSession{
		SessionID: snap.SessionID,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}
	err = a.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive save: %w", err)
	}
	a.logger.Debug("session archived", zap.String("session_id", snap.SessionID))
	return nil
}

// Load reads an archived snapshot. Missing sessions return ErrSessionNotFound.
func (a *ArchiveStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var row archivedSession
	err := a.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, ErrSessionNotFound
		}
		return Snapshot{}, fmt.Errorf("archive load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(row.Payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return snap, nil
}

// Delete removes an archived session. Deleting a missing session is not an error.
func (a *ArchiveStore) Delete(ctx context.Context, sessionID string) error {
	if err := a.db.WithContext(ctx).Delete(&archivedSession{}, "session_id = ?", sessionID).Error; err != nil {
		return fmt.Errorf("archive delete: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (a *ArchiveStore) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
