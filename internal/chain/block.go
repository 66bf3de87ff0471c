package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Genesis is the prev_hash of the first block.
const Genesis = "GENESIS"

// Block is one stored record. Field order and JSON names are part of the
// on-disk format.
type Block struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	MagMeas   string `json:"mag_meas"`
	UltraMeas string `json:"ultra_meas"`
	User      string `json:"user"`
	MAC       string `json:"MAC"`
	PrevHash  string `json:"prev_hash"`
	CurrHash  string `json:"curr_hash"`
}

// canonical is Block without curr_hash.
type canonical struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	MagMeas   string `json:"mag_meas"`
	UltraMeas string `json:"ultra_meas"`
	User      string `json:"user"`
	MAC       string `json:"MAC"`
	PrevHash  string `json:"prev_hash"`
}

// Entry is the content of a block before it is chained.
type Entry struct {
	Timestamp string
	Event     string
	MagMeas   string
	UltraMeas string
	User      string
	MAC       string
}

// Canonical returns the hash input for b.
func (b Block) Canonical() ([]byte, error) {
	return encodeCompact(canonical{
		Timestamp: b.Timestamp,
		Event:     b.Event,
		MagMeas:   b.MagMeas,
		UltraMeas: b.UltraMeas,
		User:      b.User,
		MAC:       b.MAC,
		PrevHash:  b.PrevHash,
	})
}

// ComputeHash returns the hex SHA-256 of b's canonical form.
func (b Block) ComputeHash() (string, error) {
	data, err := b.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// newBlock chains e onto prevHash and fills in curr_hash.
func newBlock(e Entry, prevHash string) (Block, error) {
	b := Block{
		Timestamp: e.Timestamp,
		Event:     e.Event,
		MagMeas:   e.MagMeas,
		UltraMeas: e.UltraMeas,
		User:      e.User,
		MAC:       e.MAC,
		PrevHash:  prevHash,
	}
	hash, err := b.ComputeHash()
	if err != nil {
		return Block{}, err
	}
	b.CurrHash = hash
	return b, nil
}

// encodeCompact marshals v without HTML escaping or a trailing newline.
func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding block: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// parseBlock decodes one log line.
func parseBlock(line []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(line, &b); err != nil {
		return Block{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if b.PrevHash == "" || b.CurrHash == "" {
		return Block{}, fmt.Errorf("%w: missing hash fields", ErrMalformed)
	}
	return b, nil
}
