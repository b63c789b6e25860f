package nmea

// LineCapacity is the largest line the framer holds, terminator included.
const LineCapacity = 160

// FramerStats counts what the framer did with completed lines.
type FramerStats struct {
	Sentences  uint64 `json:"sentences"`
	Malformed  uint64 `json:"malformed"`
	Overflows  uint64 `json:"overflows"`
	Suppressed uint64 `json:"suppressed"`
}

// Framer reassembles CRLF-terminated sentences from a byte stream.
//
// A line that does not fit in LineCapacity bytes sets the overflow flag and is
// discarded; the tail of that line, once its newline arrives, is dropped too.
// A trailing *HH checksum is cut off without being checked. Each accepted
// sentence is passed to the handler without its leading '$'.
type Framer struct {
	buf      [LineCapacity]byte
	pos      int
	overflow bool

	handle func(sentence string)
	stats  FramerStats
}

func NewFramer(handle func(sentence string)) *Framer {
	return &Framer{handle: handle}
}

// Write feeds stream bytes to the framer. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	for _, c := range p {
		f.put(c)
	}
	return len(p), nil
}

// Reset drops any partial line, e.g. after the stream was reconnected.
func (f *Framer) Reset() {
	f.pos = 0
	f.overflow = false
}

func (f *Framer) Stats() FramerStats { return f.stats }

func (f *Framer) put(c byte) {
	if c != '\n' {
		f.buf[f.pos] = c
		f.pos++
		if f.pos == len(f.buf) {
			f.overflow = true
			f.pos = 0
			f.stats.Overflows++
		}
		return
	}

	line := f.buf[:f.pos]
	if f.overflow {
		f.stats.Suppressed++
	} else {
		f.line(line)
	}
	f.pos = 0
	f.overflow = false
}

func (f *Framer) line(line []byte) {
	n := len(line)
	if n < 2 || line[0] != '$' || line[n-1] != '\r' {
		f.stats.Malformed++
		return
	}
	end := n - 1
	if n > 4 && line[n-4] == '*' {
		end = n - 4
	}
	f.stats.Sentences++
	if f.handle != nil {
		f.handle(string(line[1:end]))
	}
}
