package gridindex

// visitedSet is a generation-stamped scratch buffer used to deduplicate
// handles within a single query. Starting a new query only bumps the
// generation; the buffer is zeroed when the generation wraps around.
type visitedSet struct {
	stamps     []uint32
	generation uint32
}

func (s *visitedSet) begin(size int) {
	if len(s.stamps) < size {
		s.stamps = append(s.stamps, make([]uint32, size-len(s.stamps))...)
	}

	s.generation++
	if s.generation == 0 {
		clear(s.stamps)
		s.generation = 1
	}
}

// visit marks the handle as visited and reports whether it was not visited
// yet during the current generation.
func (s *visitedSet) visit(h Handle) bool {
	if s.stamps[h] == s.generation {
		return false
	}
	s.stamps[h] = s.generation
	return true
}
