// Package storage persists each published block (the mined frame and the
// trade results it produced) to a pebble archive, one record per block.
// The archive is a log artifact: nothing in the simulation reads it back.
package storage

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
)

// BlockRecord is the archived view of one block.
type BlockRecord struct {
	RunID    string
	BlockNum uint64
	Frame    []order.Order
	Results  []auction.TradeResults
}

// RunHeader describes a run for later inspection of a shared archive.
type RunHeader struct {
	RunID      string
	Name       string
	MarketType string
	StartedAt  time.Time
}

// Archive wraps a pebble DB with the block/run key scheme.
type Archive struct {
	db    *pebble.DB
	runID string
}

// keys: b:<8-byte-blocknum>, r:<runid>
func kBlock(num uint64) []byte { return append([]byte("b:"), blockKeyBytes(num)...) }
func kRun(runID string) []byte { return append([]byte("r:"), runID...) }

// Open opens (or creates) the archive at path for the given run.
func Open(path, runID string) (*Archive, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{db: db, runID: runID}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) RunID() string { return a.runID }

// SaveHeader records the run header.
func (a *Archive) SaveHeader(h RunHeader) error {
	val, err := encodeGob(h)
	if err != nil {
		return fmt.Errorf("encode run header: %w", err)
	}
	if err := a.db.Set(kRun(h.RunID), val, pebble.Sync); err != nil {
		return fmt.Errorf("save run header: %w", err)
	}
	return nil
}

// SaveBlock persists one block record under its block number.
func (a *Archive) SaveBlock(rec BlockRecord) error {
	rec.RunID = a.runID
	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", rec.BlockNum, err)
	}
	if err := a.db.Set(kBlock(rec.BlockNum), val, pebble.Sync); err != nil {
		return fmt.Errorf("save block %d: %w", rec.BlockNum, err)
	}
	return nil
}

// GetBlock loads a block record by number.
func (a *Archive) GetBlock(num uint64) (BlockRecord, bool, error) {
	val, closer, err := a.db.Get(kBlock(num))
	if err != nil {
		if err == pebble.ErrNotFound {
			return BlockRecord{}, false, nil
		}
		return BlockRecord{}, false, err
	}
	defer closer.Close()
	var out BlockRecord
	if err := decodeGob(val, &out); err != nil {
		return BlockRecord{}, false, fmt.Errorf("decode block %d: %w", num, err)
	}
	return out, true, nil
}

// GetHeader loads a run header by id.
func (a *Archive) GetHeader(runID string) (RunHeader, bool, error) {
	val, closer, err := a.db.Get(kRun(runID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return RunHeader{}, false, nil
		}
		return RunHeader{}, false, err
	}
	defer closer.Close()
	var out RunHeader
	if err := decodeGob(val, &out); err != nil {
		return RunHeader{}, false, fmt.Errorf("decode run header: %w", err)
	}
	return out, true, nil
}
