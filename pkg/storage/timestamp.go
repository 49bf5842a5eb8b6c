package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Timestamp holds the word level timing of a track, encoded as JSON.
type Timestamp struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Words     string `gorm:"type:text;not null"`
}

func (s *Store) GetTimestamps(ctx context.Context, id string) ([]lyrics.TimedWord, error) {
	var v Timestamp
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("storage: timestamps %s: %w", id, timestamps.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: failed to get timestamps %s: %w", id, err)
	}
	var words []lyrics.TimedWord
	if err := json.Unmarshal([]byte(v.Words), &words); err != nil {
		return nil, fmt.Errorf("storage: couldn't decode timestamps %s: %w", id, err)
	}
	return words, nil
}

func (s *Store) SetTimestamps(ctx context.Context, id string, words []lyrics.TimedWord) error {
	b, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("storage: couldn't encode timestamps %s: %w", id, err)
	}
	now := time.Now().UTC()
	v := &Timestamp{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Words:     string(b),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"words", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("storage: failed to set timestamps %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteTimestamps(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Timestamp{ID: id}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("storage: failed to delete timestamps %s: %w", id, err)
	}
	return nil
}
