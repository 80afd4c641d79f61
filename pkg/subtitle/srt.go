// Package subtitle writes FileSubtitleSegment lists to SRT files.
package subtitle

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidSegments is returned by WriteSRT when the segment list
// violates the format's ordering/overlap invariants.
var ErrInvalidSegments = errors.New("subtitle: invalid segment list")

// Segment is one subtitle entry: a 1-based index, a non-overlapping time
// span in seconds, and its text.
type Segment struct {
	Index     int
	StartTime float64
	EndTime   float64
	Text      string
}

// WriteSRT serializes segments as SRT blocks to w. Segments must already be
// sorted by StartTime with contiguous 1-based indices and no overlap;
// WriteSRT validates this rather than silently re-deriving it, since
// reordering here would hide a bug upstream in the pipeline that produced
// the segments.
func WriteSRT(w io.Writer, segments []Segment) error {
	for i, s := range segments {
		if s.Index != i+1 {
			return fmt.Errorf("%w: segment %d has index %d, want %d", ErrInvalidSegments, i, s.Index, i+1)
		}
		if s.EndTime < s.StartTime {
			return fmt.Errorf("%w: segment %d end_time before start_time", ErrInvalidSegments, s.Index)
		}
		if i > 0 && s.StartTime < segments[i-1].EndTime {
			return fmt.Errorf("%w: segment %d overlaps segment %d", ErrInvalidSegments, s.Index, segments[i-1].Index)
		}
	}

	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", s.Index, formatTimestamp(s.StartTime), formatTimestamp(s.EndTime), s.Text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(seconds*1000 + 0.5)
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	s := totalSec % 60
	totalMin := totalSec / 60
	m := totalMin % 60
	h := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
