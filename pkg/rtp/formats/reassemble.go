package formats

import "sort"

// seqFragment is one fragment accepted into an in-progress access unit,
// tagged with the RTP sequence number it arrived under so the unit can be
// reassembled in sequence-ordered position regardless of arrival order.
type seqFragment struct {
	seq  uint16
	data []byte
}

// activeFrame is one access unit that has seen its START fragment, keyed by
// the RTP timestamp the START carried. Fragments accumulate in frags in
// whatever order they arrive; completion is decided by sequence contiguity
// from the START's sequence number through the END's, not by arrival count.
type activeFrame struct {
	baseSeq  uint16
	haveEnd  bool
	endDelta int32
	frags    []seqFragment
}

func (f *activeFrame) delta(seq uint16) int32 {
	return int32(int16(seq - f.baseSeq))
}

// insert adds a fragment at its sequence-ordered slot, ignoring a duplicate
// sequence number (a retransmission or a re-delivered probation entry). If
// the fragment is the access unit's END, the caller must also mark it via
// markEnd — insert alone does not know a relocated probation fragment's
// original kind.
func (f *activeFrame) insert(seq uint16, data []byte) {
	for _, e := range f.frags {
		if e.seq == seq {
			return
		}
	}
	f.frags = append(f.frags, seqFragment{seq: seq, data: data})
}

// markEnd records that seq is the access unit's END fragment, whether it
// arrived directly or is being relocated out of the probation zone.
func (f *activeFrame) markEnd(seq uint16) {
	f.haveEnd = true
	f.endDelta = f.delta(seq)
}

// tryAssemble concatenates frags in sequence order and reports completion
// only when every sequence number from the START to the END fragment is
// present with no gap — arrival order never affects the result.
func (f *activeFrame) tryAssemble() ([]byte, bool) {
	if !f.haveEnd {
		return nil, false
	}
	if int32(len(f.frags)) != f.endDelta+1 {
		return nil, false
	}

	ordered := append([]seqFragment(nil), f.frags...)
	sort.Slice(ordered, func(i, j int) bool {
		return f.delta(ordered[i].seq) < f.delta(ordered[j].seq)
	})

	for i, e := range ordered {
		if f.delta(e.seq) != int32(i) {
			return nil, false
		}
	}

	var out []byte
	for _, e := range ordered {
		out = append(out, e.data...)
	}
	return out, true
}

// probationFragment is one fragment held for an access unit whose START has
// not yet arrived, tagged with the timestamp that will key its activeFrame
// once START does arrive, the sequence number that will place it within
// that frame, and whether it was itself the END fragment — lost otherwise
// once it is no longer sitting next to its own ClassifyFragment call.
type probationFragment struct {
	timestamp uint32
	seq       uint16
	data      []byte
	isEnd     bool
}

// Reassembler holds per-source fragmentation state for one codec: a set of
// in-progress access units keyed by the RTP timestamp of their first
// fragment (the data model's "per SSRC, a set of in-progress frames"), plus
// a probation zone for fragments of access units whose START has not yet
// arrived (reordered ahead of it by the network, or belonging to a second
// access unit interleaved with the one currently active). The probation
// zone is a fixed byte budget, not a fixed fragment count: it evicts the
// oldest fragments first when full rather than growing without bound.
type Reassembler struct {
	codec Codec

	active map[uint32]*activeFrame

	probation    []probationFragment
	probationCap int
	probationLen int
}

// NewReassembler allocates a reassembler for codec with a probation zone
// of pzSize*maxPayload bytes. pzSize must be > 0.
func NewReassembler(codec Codec, maxPayload, pzSize int) (*Reassembler, error) {
	if pzSize <= 0 {
		return nil, ErrInvalidProbationSize
	}
	return &Reassembler{
		codec:        codec,
		active:       make(map[uint32]*activeFrame),
		probationCap: pzSize * maxPayload,
	}, nil
}

// appendProbation stores one fragment in the probation zone, evicting the
// oldest fragments (regardless of which access unit they belong to) until
// the zone's byte budget is satisfied again.
func (r *Reassembler) appendProbation(timestamp uint32, seq uint16, data []byte, isEnd bool) {
	entry := probationFragment{timestamp: timestamp, seq: seq, data: append([]byte(nil), data...), isEnd: isEnd}
	r.probation = append(r.probation, entry)
	r.probationLen += len(entry.data)

	for r.probationLen > r.probationCap && len(r.probation) > 0 {
		oldest := r.probation[0]
		r.probation = r.probation[1:]
		r.probationLen -= len(oldest.data)
	}
}

// takeProbation removes and returns every fragment held for timestamp, in
// the order they were received, for relocation into the now-started
// activeFrame.
func (r *Reassembler) takeProbation(timestamp uint32) []probationFragment {
	var taken, kept []probationFragment
	for _, p := range r.probation {
		if p.timestamp == timestamp {
			taken = append(taken, p)
			r.probationLen -= len(p.data)
		} else {
			kept = append(kept, p)
		}
	}
	r.probation = kept
	return taken
}

// Push feeds one wire fragment (the RTP payload, header already stripped by
// the dispatcher), tagged with the sequence number and timestamp of the RTP
// packet it arrived in.
//
// It returns (payload, true, nil) once the fragment completes an access
// unit (a FragmentSingle, or the fragment that closes a sequence-contiguous
// run from START to END); it returns (nil, false, nil) while more fragments
// are awaited, including every fragment absorbed into the probation zone;
// and it returns a non-nil error only when the fragment itself is malformed.
func (r *Reassembler) Push(fragment []byte, seq uint16, timestamp uint32) ([]byte, bool, error) {
	kind, err := r.codec.ClassifyFragment(fragment)
	if err != nil {
		return nil, false, err
	}

	payload, err := r.codec.ExtractPayload(fragment, kind)
	if err != nil {
		return nil, false, err
	}

	switch kind {
	case FragmentSingle:
		return payload, true, nil

	case FragmentStart:
		f, ok := r.active[timestamp]
		if !ok {
			f = &activeFrame{baseSeq: seq}
			r.active[timestamp] = f
		}
		f.insert(seq, payload)
		for _, p := range r.takeProbation(timestamp) {
			f.insert(p.seq, p.data)
			if p.isEnd {
				f.markEnd(p.seq)
			}
		}
		return r.finish(timestamp, f)

	case FragmentMiddle:
		f, ok := r.active[timestamp]
		if !ok {
			r.appendProbation(timestamp, seq, payload, false)
			return nil, false, nil
		}
		f.insert(seq, payload)
		return r.finish(timestamp, f)

	case FragmentEnd:
		f, ok := r.active[timestamp]
		if !ok {
			r.appendProbation(timestamp, seq, payload, true)
			return nil, false, nil
		}
		f.insert(seq, payload)
		f.markEnd(seq)
		return r.finish(timestamp, f)

	default:
		return nil, false, ErrShortFragment
	}
}

func (r *Reassembler) finish(timestamp uint32, f *activeFrame) ([]byte, bool, error) {
	out, done := f.tryAssemble()
	if done {
		delete(r.active, timestamp)
	}
	return out, done, nil
}

// Reset discards every in-progress access unit and clears the probation
// zone.
func (r *Reassembler) Reset() {
	r.active = make(map[uint32]*activeFrame)
	r.probation = nil
	r.probationLen = 0
}
