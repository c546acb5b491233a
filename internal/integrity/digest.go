// Package integrity computes the tamper-evident digest chain carried by
// custody records. Each assignment digest covers the record's immutable
// fields plus its parent's digest, so rewriting any historical row breaks
// every digest after it.
package integrity

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// DigestSize is the length of an assignment digest in bytes.
const DigestSize = 32

// assignmentDomainKey separates custody digests from any other BLAKE3 use.
// Changing it invalidates every stored digest.
var assignmentDomainKey = [32]byte{
	't', 'i', 'c', 'k', 'e', 't', '.', 'c', 'u', 's', 't', 'o', 'd', 'y', '.',
	'a', 's', 's', 'i', 'g', 'n', 'm', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0,
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("integrity: CBOR encoder initialization failed: " + err.Error())
	}
}

// record is the canonical, immutable view of an assignment that gets hashed.
// EndedAt is excluded: it is the one field written after insert.
type record struct {
	TicketID        int64  `cbor:"1,keyasint"`
	HolderID        *int64 `cbor:"2,keyasint,omitempty"`
	AreaID          *int64 `cbor:"3,keyasint,omitempty"`
	ParentID        *int64 `cbor:"4,keyasint,omitempty"`
	ParentDigest    []byte `cbor:"5,keyasint,omitempty"`
	StartedAtMicros int64  `cbor:"6,keyasint"`
	Note            string `cbor:"7,keyasint,omitempty"`
}

// Digest computes the digest of a, chained to parentDigest (nil for the root).
func Digest(a *domain.Assignment, parentDigest []byte) ([]byte, error) {
	payload, err := encMode.Marshal(record{
		TicketID:        a.TicketID,
		HolderID:        a.HolderID,
		AreaID:          a.AreaID,
		ParentID:        a.ParentID,
		ParentDigest:    parentDigest,
		StartedAtMicros: a.StartedAt.UnixMicro(),
		Note:            a.Note,
	})
	if err != nil {
		return nil, fmt.Errorf("encode assignment %d: %w", a.ID, err)
	}
	hasher, err := blake3.NewKeyed(assignmentDomainKey[:])
	if err != nil {
		return nil, fmt.Errorf("blake3 keyed init: %w", err)
	}
	_, _ = hasher.Write(payload)
	return hasher.Sum(nil), nil
}

// Mismatch identifies the first record whose stored digest does not match.
type Mismatch struct {
	AssignmentID int64
	Expected     []byte
	Stored       []byte
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("assignment %d digest mismatch: stored %x, expected %x", m.AssignmentID, m.Stored, m.Expected)
}

// VerifyChain recomputes digests over a custody history ordered newest to
// oldest, as returned by the chain walk. It returns a *Mismatch for the
// oldest record that fails.
func VerifyChain(history []domain.Assignment) error {
	var parentDigest []byte
	for i := len(history) - 1; i >= 0; i-- {
		expected, err := Digest(&history[i], parentDigest)
		if err != nil {
			return err
		}
		if !bytes.Equal(expected, history[i].Digest) {
			return &Mismatch{AssignmentID: history[i].ID, Expected: expected, Stored: history[i].Digest}
		}
		parentDigest = history[i].Digest
	}
	return nil
}
