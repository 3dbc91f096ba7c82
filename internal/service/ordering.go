package service

import (
	"fmt"

	"github.com/aldertree/questline/internal/apperr"
)

// Ordering engine: contiguous 1-based sequences for screens within a
// questionnaire and questions within a screen. Positions are authoritative
// and rewritten in full after every structural mutation; repositories
// persist the result via ReorderSiblings inside the caller's transaction.

// resolveInsertPosition validates a proposed insert position against n
// existing siblings. nil means append. Out-of-range positions are rejected,
// never clamped.
func resolveInsertPosition(n int, proposed *int, code string) (int, error) {
	if proposed == nil {
		return n + 1, nil
	}
	p := *proposed
	if p < 1 || p > n+1 {
		return 0, apperr.Validation(code, fmt.Sprintf("proposed position %d is outside [1..%d]", p, n+1))
	}
	return p, nil
}

// insertAt places id at pos (1-based) shifting later siblings down.
func insertAt(ids []uint, id uint, pos int) []uint {
	out := make([]uint, 0, len(ids)+1)
	out = append(out, ids[:pos-1]...)
	out = append(out, id)
	out = append(out, ids[pos-1:]...)
	return out
}

// removeID drops id and closes the gap, preserving relative order.
func removeID(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// moveTo removes id from its slot and reinserts it at pos. A move to the
// current position is a legal no-op resequence; the caller still rotates
// ETags. Valid positions are [1..len(ids)].
func moveTo(ids []uint, id uint, pos int, code string) ([]uint, error) {
	if pos < 1 || pos > len(ids) {
		return nil, apperr.Validation(code, fmt.Sprintf("proposed position %d is outside [1..%d]", pos, len(ids)))
	}
	return insertAt(removeID(ids, id), id, pos), nil
}

func idsOf[T any](items []T, id func(T) uint) []uint {
	out := make([]uint, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}
