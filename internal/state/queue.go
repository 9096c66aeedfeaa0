package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/talaplayer/tala/internal/db"
)

// QueueTrack represents a track in the saved queue.
type QueueTrack struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	ImageURL   string
	StreamURL  string
	DurationMs int64
}

// QueueState represents the saved playback state: the queue snapshot in
// active order plus the resumable position and modes.
type QueueState struct {
	CurrentIndex int
	PositionMs   int64
	Shuffle      bool
	LoopMode     int
	Tracks       []QueueTrack
}

// GetQueue loads the saved queue state. Returns nil on first run.
func (m *Manager) GetQueue() (*QueueState, error) {
	return getQueue(m.db)
}

// SaveQueue replaces the saved queue state.
func (m *Manager) SaveQueue(st QueueState) error {
	return saveQueue(m.db, st)
}

func getQueue(db *sql.DB) (*QueueState, error) {
	var st QueueState
	row := db.QueryRow(`SELECT current_index, position_ms, shuffle, loop_mode FROM player_state WHERE id = 1`)
	err := row.Scan(&st.CurrentIndex, &st.PositionMs, &st.Shuffle, &st.LoopMode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no saved state is valid on first run
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT track_id, title, artist, album, image_url, stream_url, duration_ms
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t QueueTrack
		var artist, album, imageURL, streamURL sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(&t.TrackID, &t.Title, &artist, &album, &imageURL, &streamURL, &durationMs); err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.Album = dbutil.NullStringValue(album)
		t.ImageURL = dbutil.NullStringValue(imageURL)
		t.StreamURL = dbutil.NullStringValue(streamURL)
		t.DurationMs = dbutil.NullInt64Value(durationMs)
		st.Tracks = append(st.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &st, nil
}

func saveQueue(sqlDB *sql.DB, st QueueState) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM queue_tracks`)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO player_state (id, current_index, position_ms, shuffle, loop_mode)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				position_ms = excluded.position_ms,
				shuffle = excluded.shuffle,
				loop_mode = excluded.loop_mode
		`, st.CurrentIndex, st.PositionMs, st.Shuffle, st.LoopMode)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, title, artist, album, image_url, stream_url, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range st.Tracks {
			_, err = stmt.Exec(i, t.TrackID, t.Title, t.Artist, t.Album, t.ImageURL, t.StreamURL, t.DurationMs)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func savePosition(db *sql.DB, pos time.Duration) error {
	_, err := db.Exec(`UPDATE player_state SET position_ms = ? WHERE id = 1`, pos.Milliseconds())
	return err
}
