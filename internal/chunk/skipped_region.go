package chunk

import "fmt"

// SkippedRegion describes a span of bytes a Reader gave up on during
// Recover, so the caller can log what was lost (spec.md §4.3.3).
type SkippedRegion struct {
	Begin   int64
	End     int64
	Message string
}

func (s SkippedRegion) String() string {
	return fmt.Sprintf("skipped [%d, %d): %s", s.Begin, s.End, s.Message)
}
