// Gallery persistence for saved edits
package gallery

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"artify/internal/encode"
	"artify/internal/pipeline"
	"artify/internal/raster"
)

const schema = `
CREATE TABLE IF NOT EXISTS gallery_entries (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	stack_json  TEXT NOT NULL,
	output_png  BLOB NOT NULL,
	width       INTEGER NOT NULL,
	height      INTEGER NOT NULL,
	channels    INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	modified_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gallery_source ON gallery_entries(source_id);
`

// Entry is one saved (source, edit stack, cached output) record.
type Entry struct {
	ID         string
	SourceID   string
	Stack      pipeline.EditStack
	Width      int
	Height     int
	Channels   int
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Store persists gallery entries in SQLite. It owns the saved records; the
// pipeline only ever hands it finished buffers.
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// Open opens (or creates) the gallery database at path. ":memory:" works
// for tests.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gallery: open: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("gallery: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("gallery: schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save overwrites the existing entry for sourceID with a new stack and
// output, or creates one if none exists.
func (s *Store) Save(sourceID string, stack pipeline.EditStack, final *raster.Buffer) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM gallery_entries WHERE source_id = ? ORDER BY modified_at DESC LIMIT 1`,
		sourceID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return s.insert(sourceID, stack, final)
	case err != nil:
		return "", fmt.Errorf("gallery: lookup: %w", err)
	}

	stackJSON, png, err := marshal(stack, final)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		`UPDATE gallery_entries
		 SET stack_json = ?, output_png = ?, width = ?, height = ?, channels = ?, modified_at = ?
		 WHERE id = ?`,
		stackJSON, png, final.Width, final.Height, final.Channels, now, id)
	if err != nil {
		return "", fmt.Errorf("gallery: update: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"entry": id, "source": sourceID}).
		Info("Gallery entry updated")
	return id, nil
}

// SaveAs always creates a new entry for sourceID.
func (s *Store) SaveAs(sourceID string, stack pipeline.EditStack, final *raster.Buffer) (string, error) {
	return s.insert(sourceID, stack, final)
}

func (s *Store) insert(sourceID string, stack pipeline.EditStack, final *raster.Buffer) (string, error) {
	stackJSON, png, err := marshal(stack, final)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		`INSERT INTO gallery_entries
		 (id, source_id, stack_json, output_png, width, height, channels, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sourceID, stackJSON, png, final.Width, final.Height, final.Channels, now, now)
	if err != nil {
		return "", fmt.Errorf("gallery: insert: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"entry": id, "source": sourceID}).
		Info("Gallery entry created")
	return id, nil
}

// List returns all entries newest-first, without their pixel data.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, source_id, stack_json, width, height, channels, created_at, modified_at
		 FROM gallery_entries ORDER BY modified_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("gallery: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns one entry together with its cached output buffer.
func (s *Store) Get(id string) (Entry, *raster.Buffer, error) {
	row := s.db.QueryRow(
		`SELECT id, source_id, stack_json, width, height, channels, created_at, modified_at
		 FROM gallery_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, nil, fmt.Errorf("gallery: entry %q not found", id)
	}
	if err != nil {
		return Entry{}, nil, err
	}

	var png []byte
	if err := s.db.QueryRow(
		`SELECT output_png FROM gallery_entries WHERE id = ?`, id).Scan(&png); err != nil {
		return Entry{}, nil, fmt.Errorf("gallery: load output: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return Entry{}, nil, fmt.Errorf("gallery: decode output: %w", err)
	}
	buf, err := raster.FromImage(img)
	if err != nil {
		return Entry{}, nil, err
	}
	return entry, buf, nil
}

// Delete removes an entry.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM gallery_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("gallery: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("gallery: entry %q not found", id)
	}
	s.logger.WithFields(logrus.Fields{"entry": id}).Info("Gallery entry deleted")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var entry Entry
	var stackJSON, created, modified string
	if err := row.Scan(&entry.ID, &entry.SourceID, &stackJSON,
		&entry.Width, &entry.Height, &entry.Channels, &created, &modified); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(stackJSON), &entry.Stack); err != nil {
		return Entry{}, fmt.Errorf("gallery: decode stack: %w", err)
	}
	var err error
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Entry{}, fmt.Errorf("gallery: parse created_at: %w", err)
	}
	if entry.ModifiedAt, err = time.Parse(time.RFC3339Nano, modified); err != nil {
		return Entry{}, fmt.Errorf("gallery: parse modified_at: %w", err)
	}
	return entry, nil
}

func marshal(stack pipeline.EditStack, final *raster.Buffer) (string, []byte, error) {
	stackJSON, err := json.Marshal(stack)
	if err != nil {
		return "", nil, fmt.Errorf("gallery: encode stack: %w", err)
	}
	png, err := encode.Encode(final, encode.FormatPNG, encode.Options{})
	if err != nil {
		return "", nil, fmt.Errorf("gallery: encode output: %w", err)
	}
	return string(stackJSON), png, nil
}
