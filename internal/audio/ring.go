package audio

// Ring is a fixed-capacity ring buffer of sample chunks used to keep preroll
// audio before speech onset. When full, pushing a new chunk evicts the oldest.
// It is owned by a single goroutine and is not safe for concurrent use.
type Ring struct {
	chunks [][]float32
	head   int
	size   int
}

// NewRing creates a ring holding at most capacity chunks. A non-positive
// capacity yields a ring that stores nothing.
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{chunks: make([][]float32, capacity)}
}

// Push appends a chunk, evicting the oldest when full. The ring keeps a copy
// so the caller may reuse the slice.
func (r *Ring) Push(chunk []float32) {
	if len(r.chunks) == 0 {
		return
	}
	c := make([]float32, len(chunk))
	copy(c, chunk)
	tail := (r.head + r.size) % len(r.chunks)
	r.chunks[tail] = c
	if r.size < len(r.chunks) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.chunks)
	}
}

// Snapshot returns all buffered samples oldest-first as one flat slice.
func (r *Ring) Snapshot() []float32 {
	total := 0
	for i := 0; i < r.size; i++ {
		total += len(r.chunks[(r.head+i)%len(r.chunks)])
	}
	out := make([]float32, 0, total)
	for i := 0; i < r.size; i++ {
		out = append(out, r.chunks[(r.head+i)%len(r.chunks)]...)
	}
	return out
}

// Len returns the number of chunks currently buffered.
func (r *Ring) Len() int { return r.size }
