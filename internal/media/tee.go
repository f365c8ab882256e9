package media

import "sync"

// Tee duplicates one Source into multiple independent Sources so the
// translator and the voice track can both consume the same microphone.
// A branch that falls behind drops frames rather than stalling its
// siblings.
func Tee(src Source, n int) []Source {
	branches := make([]*teeBranch, n)
	out := make([]Source, n)
	t := &tee{src: src, branches: branches}
	for i := range branches {
		branches[i] = &teeBranch{tee: t, frames: make(chan []byte, 16)}
		out[i] = branches[i]
	}
	go t.run()
	return out
}

type tee struct {
	src      Source
	branches []*teeBranch

	mu     sync.Mutex
	closed bool
}

func (t *tee) run() {
	for frame := range t.src.Frames() {
		for _, b := range t.branches {
			select {
			case b.frames <- frame:
			default:
			}
		}
	}
	t.close()
}

// close shuts every branch once, whether triggered by source exhaustion
// or by a branch Close.
func (t *tee) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	for _, b := range t.branches {
		close(b.frames)
	}
}

type teeBranch struct {
	tee    *tee
	frames chan []byte
}

func (b *teeBranch) Frames() <-chan []byte {
	return b.frames
}

// Close tears down the shared upstream source; all sibling branches end
// with it.
func (b *teeBranch) Close() error {
	return b.tee.src.Close()
}
