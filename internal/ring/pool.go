package ring

import (
	"sync"

	"tickcapture/internal/wire"
)

// BatchPool recycles the []wire.Record scratch slices the processor
// drains PopBulk into, the same way the teacher codebase pools
// high-frequency event structs to keep the hotpath allocation-free.
type BatchPool struct {
	pool sync.Pool
	size int
}

// NewBatchPool returns a pool of fixed-length batches, each sized to
// batchSize records.
func NewBatchPool(batchSize int) *BatchPool {
	bp := &BatchPool{size: batchSize}
	bp.pool.New = func() interface{} {
		return make([]wire.Record, batchSize)
	}
	return bp
}

// Acquire gets a batch slice from the pool.
func (bp *BatchPool) Acquire() []wire.Record {
	return bp.pool.Get().([]wire.Record)
}

// Release returns a batch slice to the pool. The caller must not
// retain b after calling Release.
func (bp *BatchPool) Release(b []wire.Record) {
	if len(b) != bp.size {
		return
	}
	bp.pool.Put(b)
}
