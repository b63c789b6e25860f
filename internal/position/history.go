package position

// HistorySize is the number of frames retained by a History.
const HistorySize = 10

// History is a fixed-size ring of the most recent frames.
//
// The cursor moves backwards on every push so that, reading forward from the
// cursor, frames come out newest first. History is not safe for concurrent use;
// it is owned by the engine loop.
type History struct {
	frames [HistorySize]Frame
	cursor int
	count  int
	seq    uint64
}

// Push stores f, overwriting the oldest frame once the ring is full.
func (h *History) Push(f Frame) {
	if h.cursor == 0 {
		h.cursor = HistorySize
	}
	h.cursor--
	h.frames[h.cursor] = f
	if h.count < HistorySize {
		h.count++
	}
	h.seq++
}

// Latest returns the newest frame. ok is false until the first push.
func (h *History) Latest() (f Frame, ok bool) {
	if h.count == 0 {
		return Frame{}, false
	}
	return h.frames[h.cursor], true
}

// Recent returns the retained frames, newest first.
func (h *History) Recent() []Frame {
	out := make([]Frame, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.frames[(h.cursor+i)%HistorySize])
	}
	return out
}

// Len reports how many frames are retained.
func (h *History) Len() int { return h.count }

// Seq counts pushes since creation. Readers compare it to detect new frames.
func (h *History) Seq() uint64 { return h.seq }
