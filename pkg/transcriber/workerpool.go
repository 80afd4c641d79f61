package transcriber

import (
	"context"
	"sync"

	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

// workItem is one VAD-confirmed final segment queued for recognition.
type workItem struct {
	seq        uint64
	generation uint64
	segment    vad.Segment
}

// reorderBuffer re-sequences results produced by a worker pool back into
// segment start_time order. With max_workers == 1 results already arrive in
// order, but routing everything through the same buffer keeps one code path
// for both configurations rather than special-casing the single-worker
// case.
type reorderBuffer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]TranscriptionResult
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[uint64]TranscriptionResult)}
}

// submit records seq's result and returns, in order, every result that is
// now ready to emit (seq itself plus any previously-buffered successors it
// unblocks).
func (b *reorderBuffer) submit(seq uint64, result TranscriptionResult) []TranscriptionResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[seq] = result
	var ready []TranscriptionResult
	for {
		r, ok := b.pending[b.next]
		if !ok {
			break
		}
		ready = append(ready, r)
		delete(b.pending, b.next)
		b.next++
	}
	return ready
}

// reset clears buffered state, discarding anything not yet in order. Used
// when the owning transcriber is Reset, since a generation bump means any
// buffered-but-unready results belong to a recognition the caller no longer
// wants.
func (b *reorderBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = 0
	b.pending = make(map[uint64]TranscriptionResult)
}

// startWorkers launches n goroutines draining work from ch through process,
// decrementing wg once per item regardless of outcome.
func startWorkers(ctx context.Context, n int, ch <-chan workItem, wg *sync.WaitGroup, process func(context.Context, workItem)) {
	for i := 0; i < n; i++ {
		go func() {
			for item := range ch {
				process(ctx, item)
				wg.Done()
			}
		}()
	}
}
