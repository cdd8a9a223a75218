package storage

import (
	"encoding/binary"
	"fmt"
)

// Key schema:
//
//	rcpt:<runID>:<8-byte big-endian index> → Receipt (JSON)
//
// Big-endian indexes keep a run's receipts in submission order under a
// prefix scan.
const prefixReceipt = "rcpt:"

func receiptPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixReceipt, runID))
}

func receiptKey(runID string, index int) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	return append(receiptPrefix(runID), idx[:]...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
