package crawl

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// Frontier is the crawl coordinator's priority queue, ordered by (depth
// asc, discovery order asc) per §4.K "Loop". Grounded on
// internal/services/crawler/queue.go's heap+sync.Cond URLQueue, generalized
// from a raw URL item to the richer models.FrontierEntry and from a custom
// normalizeURL (now internal/urlvalid.Normalize) to that shared helper.
type Frontier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *entryHeap
	seen   map[string]bool // normalized URL -> seen
	closed bool
}

// NewFrontier builds an empty Frontier.
func NewFrontier() *Frontier {
	h := &entryHeap{}
	heap.Init(h)
	f := &Frontier{items: h, seen: make(map[string]bool)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

type entryHeap []models.FrontierEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Depth != h[j].Depth {
		return h[i].Depth < h[j].Depth
	}
	return h[i].DiscoveryOrder < h[j].DiscoveryOrder
}
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(models.FrontierEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Push enqueues entry if its normalized URL hasn't been seen before.
// Returns false when already seen or the frontier is closed.
func (f *Frontier) Push(entry models.FrontierEntry, normalized string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.seen[normalized] {
		return false
	}
	f.seen[normalized] = true
	heap.Push(f.items, entry)
	f.cond.Signal()
	return true
}

// Pop blocks until an item is available (re-checking ctx every poll
// interval), returning
// (entry, true, nil) on success, (zero, false, nil) if the frontier is
// closed and drained, or an error if ctx is cancelled first.
func (f *Frontier) Pop(ctx context.Context) (models.FrontierEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const pollInterval = 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return models.FrontierEntry{}, false, ctx.Err()
		default:
		}

		if f.items.Len() > 0 {
			item := heap.Pop(f.items).(models.FrontierEntry)
			return item, true, nil
		}
		if f.closed {
			return models.FrontierEntry{}, false, nil
		}

		timer := time.AfterFunc(pollInterval, func() { f.cond.Broadcast() })
		f.cond.Wait()
		timer.Stop()
	}
}

// Len reports the number of queued (not yet popped) entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// Close wakes all blocked Pop calls; subsequent Pushes are rejected.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Seen reports whether normalized has already been pushed.
func (f *Frontier) Seen(normalized string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[normalized]
}
