package timeline

// DiffWindow returns the smallest contiguous range [start, end) of next that
// must replace the corresponding range of prev. Sequences are compared
// positionally: the common prefix is skipped, then the common suffix of what
// remains, so the suffix never overlaps the prefix.
//
// Identical inputs give an empty window at len(prev); an empty prev gives
// (0, len(next)).
func DiffWindow(prev, next []string) (start, end int) {
	return diffWindow(prev, next)
}

func diffWindow[T comparable](prev, next []T) (start, end int) {
	p := 0
	for p < len(prev) && p < len(next) && prev[p] == next[p] {
		p++
	}
	s := 0
	for s < len(prev)-p && s < len(next)-p && prev[len(prev)-1-s] == next[len(next)-1-s] {
		s++
	}
	end = len(next) - s
	if end < p {
		end = p
	}
	return p, end
}

// Symbols projects events onto the clip ids used for diffing.
func Symbols(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ClipID
	}
	return out
}

// Apply reconstructs next from prev and the window computed by DiffWindow:
// prev[:start] + next[start:end] + the common suffix of prev.
func Apply[T any](prev, next []T, start, end int) []T {
	suffix := len(next) - end
	out := make([]T, 0, start+(end-start)+suffix)
	out = append(out, prev[:start]...)
	out = append(out, next[start:end]...)
	out = append(out, prev[len(prev)-suffix:]...)
	return out
}

// ReplaceWindow computes the window to broadcast between two event lists.
// It is DiffWindow over whole events rather than clip ids, so a changed clip
// that shifts the offsets of later clips also carries those clips. The
// window may start or end elsewhere than the clip-id window when the clip
// ids repeat, but Apply(prev, next, start, end) always yields next. changed
// is false only when the lists are equal.
func ReplaceWindow(prev, next []Event) (start, end int, changed bool) {
	start, end = diffWindow(prev, next)
	return start, end, start != end || len(prev) != len(next)
}

// FromOffsetMS is the offset at which a replacement starting at index start
// takes effect: the first replaced event, or the end of the retained prefix
// when nothing new is inserted.
func FromOffsetMS(next []Event, start int) int64 {
	if start < len(next) {
		return next[start].OffsetMS
	}
	return EndMS(next[:start])
}
