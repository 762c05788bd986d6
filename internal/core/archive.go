package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ArchiveFilename is the download name of an archive.
const ArchiveFilename = "contacts.json"

// Archive is an immutable JSON snapshot of every contact, taken when a run
// reached 100%.
type Archive struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`

	gen  uint64
	data []byte
}

func newArchive(gen uint64, runID string, contacts []Contact) (*Archive, error) {
	data, err := json.Marshal(contacts)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	return &Archive{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Count:     len(contacts),
		gen:       gen,
		data:      data,
	}, nil
}

// Bytes returns a copy of the serialized contacts.
func (a *Archive) Bytes() []byte {
	return bytes.Clone(a.data)
}

// Size is the length of the serialized contacts in bytes.
func (a *Archive) Size() int {
	return len(a.data)
}

// WriteTo writes the serialized contacts to w.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.data)
	return int64(n), err
}

// Contacts decodes the snapshot.
func (a *Archive) Contacts() ([]Contact, error) {
	var contacts []Contact
	if err := json.Unmarshal(a.data, &contacts); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return contacts, nil
}
