// Package history records the queries and answers of each conversation so
// the protocol layer can replay them in order.
package history

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/askweb/pkg/logging"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Roles of a recorded turn
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyConversationID is returned when no conversation id is given.
var ErrEmptyConversationID = errors.New("conversation id is required")

// Turn is one recorded message of a conversation.
type Turn struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"size:128;index;not null" json:"conversation_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists turns in a SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, log *logging.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	// GORM's default logger writes to stdout, which the stdio transport owns
	dbLogger := gormlogger.New(
		stdlog.New(log.Writer(), "", 0),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&Turn{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Append records one turn of conversationID.
func (s *Store) Append(ctx context.Context, conversationID, role, content string) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	turn := &Turn{ConversationID: conversationID, Role: role, Content: content}
	if err := s.db.WithContext(ctx).Create(turn).Error; err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// Conversation returns the turns of conversationID in insertion order.
func (s *Store) Conversation(ctx context.Context, conversationID string) ([]Turn, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	var turns []Turn
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return turns, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
