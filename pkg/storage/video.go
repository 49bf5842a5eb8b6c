package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Video is a rendered or downloaded video of a track.
type Video struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TrackID string `gorm:"index;not null;default:''"`
	Path    string `gorm:"not null;default:''"`
	// URL is set for videos generated by the provider or uploaded to a file
	// store.
	URL      string `gorm:"not null;default:''"`
	Remote   bool   `gorm:"not null;default:false"`
	Lines    int    `gorm:"not null;default:0"`
	Matched  int    `gorm:"not null;default:0"`
	Degraded bool   `gorm:"not null;default:false"`
}

func (s *Store) SetVideo(ctx context.Context, v *Video) error {
	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set video %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) ListVideos(ctx context.Context, trackID string) ([]*Video, error) {
	var vs []*Video
	q := s.db.WithContext(ctx).Order("created_at desc")
	if trackID != "" {
		q = q.Where("track_id = ?", trackID)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list videos: %w", err)
	}
	return vs, nil
}
