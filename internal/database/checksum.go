package database

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"whiteboard/internal/models"
)

// Checksum returns the BLAKE2b-256 of the snapshot's JSON encoding along
// with the encoded elements.
func Checksum(snap *models.Snapshot) (string, []byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", nil, fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(data)

	elements := snap.Elements
	if elements == nil {
		elements = []models.Element{}
	}
	encoded, err := json.Marshal(elements)
	if err != nil {
		return "", nil, fmt.Errorf("encode elements: %w", err)
	}
	return hex.EncodeToString(sum[:]), encoded, nil
}
