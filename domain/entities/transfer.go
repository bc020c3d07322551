package entities

import (
	"fmt"
	"time"
)

// ChunkTransfer is the ephemeral reassembly state for a multi-part audio
// upload. Chunks may arrive in any order; writes are keyed by index and a
// repeated index is a plain overwrite.
type ChunkTransfer struct {
	TotalChunks  int
	Format       string
	DeclaredSize int64
	StartedAt    time.Time

	slots    [][]byte
	received int
}

// ChunkProgress reports reassembly progress after a chunk write.
type ChunkProgress struct {
	Index    int
	Received int
	Total    int
	Percent  float64
}

// TransferStats summarizes a completed transfer.
type TransferStats struct {
	TotalChunks  int           `json:"total_chunks"`
	Elapsed      time.Duration `json:"-"`
	ElapsedSec   float64       `json:"transfer_time_sec"`
	RateKBps     float64       `json:"transfer_rate_kbps"`
	AudioSizeKB  float64       `json:"audio_size_kb"`
}

// NewChunkTransfer allocates reassembly state for totalChunks indexed slots.
func NewChunkTransfer(totalChunks int, format string, declaredSize int64) (*ChunkTransfer, error) {
	if totalChunks <= 0 {
		return nil, NewValidationError(fmt.Sprintf("invalid chunk count: %d", totalChunks))
	}
	return &ChunkTransfer{
		TotalChunks:  totalChunks,
		Format:       format,
		DeclaredSize: declaredSize,
		StartedAt:    time.Now(),
		slots:        make([][]byte, totalChunks),
	}, nil
}

// Put writes a chunk into its slot. Out-of-range indices fail without
// mutating the received count.
func (t *ChunkTransfer) Put(index int, payload []byte) (ChunkProgress, error) {
	if index < 0 || index >= t.TotalChunks {
		return ChunkProgress{}, NewValidationError(fmt.Sprintf("invalid chunk index: %d", index))
	}
	t.slots[index] = payload
	t.received = 0
	for _, slot := range t.slots {
		if slot != nil {
			t.received++
		}
	}
	return ChunkProgress{
		Index:    index,
		Received: t.received,
		Total:    t.TotalChunks,
		Percent:  float64(t.received) / float64(t.TotalChunks) * 100,
	}, nil
}

// Full reports whether every slot holds data.
func (t *ChunkTransfer) Full() bool {
	return t.received == t.TotalChunks
}

// Assemble concatenates the filled slots in index order. Empty slots are
// skipped: a last-chunk flag finalizes with whatever arrived.
func (t *ChunkTransfer) Assemble() []byte {
	var total int
	for _, slot := range t.slots {
		total += len(slot)
	}
	combined := make([]byte, 0, total)
	for _, slot := range t.slots {
		if slot != nil {
			combined = append(combined, slot...)
		}
	}
	return combined
}

// Stats reports elapsed time and effective throughput based on the declared
// transfer size.
func (t *ChunkTransfer) Stats() TransferStats {
	elapsed := time.Since(t.StartedAt)
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 0.001
	}
	return TransferStats{
		TotalChunks: t.TotalChunks,
		Elapsed:     elapsed,
		ElapsedSec:  seconds,
		RateKBps:    float64(t.DeclaredSize) / 1024 / seconds,
		AudioSizeKB: float64(t.DeclaredSize) / 1024,
	}
}
