package call

import "strings"

// Markers that betray a structured booking block inside assistant text. The
// fenced form is what the prompt asks for; the bare key covers a model that
// skips the fence.
var blockMarkers = []string{"```json", `"booking_confirmed"`}

// blockDetector accumulates one turn's text deltas and watches the whole
// buffer for the onset of a structured block. Searching the accumulated text
// instead of each delta means a brace split across two deltas cannot produce
// a false positive or a miss.
type blockDetector struct {
	buf   strings.Builder
	found bool
}

// feed appends one delta and reports whether this delta revealed the block
// onset. Returns true exactly once per turn.
func (d *blockDetector) feed(delta string) (onset bool) {
	d.buf.WriteString(delta)
	if d.found {
		return false
	}
	text := d.buf.String()
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			d.found = true
			return true
		}
	}
	return false
}

// text returns everything accumulated this turn.
func (d *blockDetector) text() string {
	return d.buf.String()
}

// reset prepares the detector for a fresh turn.
func (d *blockDetector) reset() {
	d.buf.Reset()
	d.found = false
}
