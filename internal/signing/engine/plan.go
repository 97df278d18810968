package engine

import "github.com/vietddude/tiebasign/internal/core/domain"

// Plan partitions items into consecutive windows of at most size items.
// Concatenating the windows in order reproduces the input.
func Plan(items []domain.Item, size int) [][]domain.Item {
	if size <= 0 {
		size = 1
	}
	batches := make([][]domain.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}
