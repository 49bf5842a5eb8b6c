package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

// Migration records the schema version of the database.
type Migration struct {
	ID        string `gorm:"primarykey"`
	CreatedAt int64
	UpdatedAt int64

	Version int `gorm:"not null;default:0"`
}

// migrations upgrade databases created by older versions. Version n runs
// migrations[n-1].
var migrations = []func(db *gorm.DB) error{
	importInlineTimestamps,
}

// Migrate brings the schema up to date. Fresh databases are created at the
// latest version and skip the custom migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	fresh := !db.Migrator().HasTable(&Track{})

	if err := s.customMigrate(db, fresh); err != nil {
		return err
	}
	if err := db.AutoMigrate(
		&Track{},
		&Timestamp{},
		&Video{},
		&File{},
	); err != nil {
		return fmt.Errorf("storage: failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) customMigrate(db *gorm.DB, fresh bool) error {
	last := len(migrations)

	var m Migration
	if !db.Migrator().HasTable(&Migration{}) {
		if err := db.Migrator().CreateTable(&Migration{}); err != nil {
			return fmt.Errorf("storage: failed to create table migrations: %w", err)
		}
		m = Migration{ID: ulid.Make().String()}
		if fresh {
			m.Version = last
		}
		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("storage: failed to save migration version: %w", err)
		}
	} else if err := db.First(&m).Error; err != nil {
		return fmt.Errorf("storage: failed to get migration version: %w", err)
	}

	for v := m.Version + 1; v <= last; v++ {
		log.Printf("storage: running migration %d\n", v)
		if err := migrations[v-1](db); err != nil {
			return fmt.Errorf("storage: migration %d: %w", v, err)
		}
		m.Version = v
		if err := db.Save(&m).Error; err != nil {
			return fmt.Errorf("storage: failed to save migration version: %w", err)
		}
	}
	return nil
}

// legacyWord is an entry of the raw timestamped lyrics response that older
// versions stored inline in the tracks table.
type legacyWord struct {
	Word    string  `json:"word"`
	Success bool    `json:"success"`
	Start   float64 `json:"startS"`
	End     float64 `json:"endS"`
}

// importInlineTimestamps moves the inline timing data of every track to the
// timestamps table and rebuilds the tracks table without the old column.
// Entries that can't be decoded are skipped, they are fetched again when
// needed.
func importInlineTimestamps(db *gorm.DB) error {
	const column = "timestamped_lyrics"
	if !db.Migrator().HasColumn(&Track{}, column) {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&Timestamp{}); err != nil {
			return err
		}
		var rows []struct {
			ID    string
			Words string
		}
		if err := tx.Table("tracks").
			Select("id, " + column + " AS words").
			Where(column + " IS NOT NULL AND " + column + " <> ''").
			Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			words, err := decodeLegacy(r.Words)
			if err != nil {
				log.Printf("storage: skipping timestamps of %s: %v\n", r.ID, err)
				continue
			}
			js, err := json.Marshal(words)
			if err != nil {
				return err
			}
			if err := tx.Save(&Timestamp{ID: r.ID, Words: string(js)}).Error; err != nil {
				return err
			}
		}
		return rebuildTracks(tx)
	})
}

// rebuildTracks recreates the tracks table from the model, keeping the
// columns both schemas share. Tables created outside gorm can't always be
// altered in place by the sqlite migrator.
func rebuildTracks(db *gorm.DB) error {
	legacy, err := columns(db, "tracks")
	if err != nil {
		return err
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&Track{}); err != nil {
		return err
	}
	var keep []string
	for _, name := range stmt.Schema.DBNames {
		if legacy[name] {
			keep = append(keep, name)
		}
	}
	var tracks []*Track
	if err := db.Table("tracks").Select(keep).Find(&tracks).Error; err != nil {
		return fmt.Errorf("couldn't read tracks: %w", err)
	}
	m := db.Migrator()
	if err := m.DropTable("tracks"); err != nil {
		return fmt.Errorf("couldn't drop tracks: %w", err)
	}
	if err := m.CreateTable(&Track{}); err != nil {
		return fmt.Errorf("couldn't create tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil
	}
	if err := db.CreateInBatches(tracks, 100).Error; err != nil {
		return fmt.Errorf("couldn't copy tracks: %w", err)
	}
	return nil
}

// columns returns the lower cased column names of a table.
func columns(db *gorm.DB, table string) (map[string]bool, error) {
	rows, err := db.Table(table).Where("1 = 0").Rows()
	if err != nil {
		return nil, fmt.Errorf("couldn't query %s: %w", table, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("couldn't get columns of %s: %w", table, err)
	}
	cols := map[string]bool{}
	for _, n := range names {
		cols[strings.ToLower(n)] = true
	}
	return cols, nil
}

func decodeLegacy(raw string) ([]lyrics.TimedWord, error) {
	var legacy []legacyWord
	// Both the bare list and the api data object were stored
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var data struct {
			AlignedWords []legacyWord `json:"alignedWords"`
		}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, err
		}
		legacy = data.AlignedWords
	} else if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return nil, err
	}
	var words []lyrics.TimedWord
	for _, w := range legacy {
		if !w.Success || strings.TrimSpace(w.Word) == "" {
			continue
		}
		words = append(words, lyrics.TimedWord{Word: w.Word, Start: w.Start, End: w.End})
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("no timed words")
	}
	if err := lyrics.Validate(words); err != nil {
		return nil, err
	}
	return words, nil
}
