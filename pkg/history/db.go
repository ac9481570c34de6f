// Package history journals observed hand results in a local sqlite
// database.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vctt94/pokertablesync/pkg/table"
)

// DB is the hand-history database.
type DB struct {
	*sql.DB
}

// Hand is one journaled hand.
type Hand struct {
	TableID    string
	HandID     string
	Sequence   uint64
	Board      []table.Card
	Winners    []table.Winner
	Revealed   []table.RevealedHand
	RecordedAt time.Time
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS hands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id TEXT NOT NULL,
			hand_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			board TEXT NOT NULL,
			revealed TEXT NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (table_id, hand_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS winners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hand_row INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			description TEXT,
			FOREIGN KEY (hand_row) REFERENCES hands(id)
		)
	`)
	return err
}

// RecordHandResult stores the result of a hand. A hand already recorded
// for the table is left untouched and reported with recorded=false.
func (db *DB) RecordHandResult(tableID, handID string, sequence uint64, board []table.Card, result *table.HandResult) (recorded bool, err error) {
	if tableID == "" || handID == "" {
		return false, errors.New("table and hand id are required")
	}
	if result == nil {
		return false, errors.New("nil hand result")
	}
	boardJSON, err := json.Marshal(nonNilCards(board))
	if err != nil {
		return false, err
	}
	revealed := result.Revealed
	if revealed == nil {
		revealed = []table.RevealedHand{}
	}
	revealedJSON, err := json.Marshal(revealed)
	if err != nil {
		return false, err
	}

	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO hands (table_id, hand_id, sequence, board, revealed)
		VALUES (?, ?, ?, ?, ?)
	`, tableID, handID, int64(sequence), string(boardJSON), string(revealedJSON))
	if err != nil {
		return false, fmt.Errorf("failed to insert hand: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	row, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	for _, w := range result.Winners {
		_, err = tx.Exec(`
			INSERT INTO winners (hand_row, player_id, amount, description)
			VALUES (?, ?, ?, ?)
		`, row, w.PlayerID, w.Amount, w.HandDescription)
		if err != nil {
			return false, fmt.Errorf("failed to insert winner: %w", err)
		}
	}
	return true, tx.Commit()
}

// RecentHands returns up to limit hands of the table, newest first.
func (db *DB) RecentHands(tableID string, limit int) ([]Hand, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, hand_id, sequence, board, revealed, recorded_at
		FROM hands WHERE table_id = ?
		ORDER BY id DESC LIMIT ?
	`, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hands: %w", err)
	}
	defer rows.Close()

	var hands []Hand
	var ids []int64
	for rows.Next() {
		var (
			id                  int64
			seq                 int64
			board, revealedJSON string
			h                   = Hand{TableID: tableID}
		)
		if err := rows.Scan(&id, &h.HandID, &seq, &board, &revealedJSON, &h.RecordedAt); err != nil {
			return nil, err
		}
		h.Sequence = uint64(seq)
		if err := json.Unmarshal([]byte(board), &h.Board); err != nil {
			return nil, fmt.Errorf("hand %s: bad board: %w", h.HandID, err)
		}
		if err := json.Unmarshal([]byte(revealedJSON), &h.Revealed); err != nil {
			return nil, fmt.Errorf("hand %s: bad revealed hands: %w", h.HandID, err)
		}
		hands = append(hands, h)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		winners, err := db.winners(id)
		if err != nil {
			return nil, err
		}
		hands[i].Winners = winners
	}
	return hands, nil
}

func (db *DB) winners(handRow int64) ([]table.Winner, error) {
	rows, err := db.Query(`
		SELECT player_id, amount, COALESCE(description, '')
		FROM winners WHERE hand_row = ? ORDER BY id
	`, handRow)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	var out []table.Winner
	for rows.Next() {
		var w table.Winner
		if err := rows.Scan(&w.PlayerID, &w.Amount, &w.HandDescription); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

func nonNilCards(cards []table.Card) []table.Card {
	if cards == nil {
		return []table.Card{}
	}
	return cards
}
