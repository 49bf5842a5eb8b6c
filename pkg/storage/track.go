package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Track is a generated song. Its id is the base name of the audio file.
type Track struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TaskID     string `gorm:"index;not null;default:''"`
	AudioID    string `gorm:"not null;default:''"`
	MusicIndex int    `gorm:"not null;default:0"`

	Title  string `gorm:"not null;default:''"`
	Style  string `gorm:"not null;default:''"`
	Lyrics string `gorm:"not null;default:''"`
	Model  string `gorm:"not null;default:''"`

	Audio    string  `gorm:"not null;default:''"`
	AudioURL string  `gorm:"not null;default:''"`
	Image    string  `gorm:"not null;default:''"`
	ImageURL string  `gorm:"not null;default:''"`
	Duration float64 `gorm:"not null;default:0"`
}

func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	var v Track
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("storage: track %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: failed to get track %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetTrack(ctx context.Context, v *Track) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set track %s: %w", v.ID, err)
	}
	return nil
}

// DeleteTrack removes a track along with its videos and cached timestamps.
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Track{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete track %s: %w", id, err)
	}
	if err := s.db.WithContext(ctx).Where("track_id = ?", id).Delete(&Video{}).Error; err != nil {
		return fmt.Errorf("storage: failed to delete videos of %s: %w", id, err)
	}
	return s.DeleteTimestamps(ctx, id)
}

// ListTracks returns tracks from newest to oldest. A size of zero returns
// all of them.
func (s *Store) ListTracks(ctx context.Context, p, size int) ([]*Track, error) {
	var vs []*Track
	q := page(s.db.WithContext(ctx).Order("created_at desc, id"), p, size)
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list tracks: %w", err)
	}
	return vs, nil
}
