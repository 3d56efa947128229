// Package memory implements the GF-ISA memory hierarchy (C3): N cache
// levels plus main memory, each with its own line storage, latency-timed
// request queue, and write-through-no-allocate store semantics.
//
// Every address handed to this package — by any pipeline stage or the
// no-pipeline reference mode — must be aligned to word.MemBlockWidth; one
// address unit corresponds to one bit of the (conceptually bit-addressed)
// address space, so consecutive 32-bit words sit 32 units apart. This
// mirrors the original implementation this simulator was distilled from and
// is what makes the "addr mod 32 == 0" alignment invariant exact.
package memory

import (
	"errors"
	"fmt"

	"gfisa/internal/gflog"
	"gfisa/internal/word"
)

// ErrUnalignedAccess is returned when a request's address is not a multiple
// of word.MemBlockWidth. The pipeline stage that issues the request treats
// this as a fatal bug in its own address computation (spec §7): callers are
// expected to panic on it, not recover.
var ErrUnalignedAccess = errors.New("memory: unaligned access")

// Issuer names the pipeline stage (or the no-pipeline reference mode) that
// originated a request. Part of a request's structural identity.
type Issuer string

const (
	IssuerFetch     Issuer = "Fetch"
	IssuerDecode    Issuer = "Decode"
	IssuerExecute   Issuer = "Execute"
	IssuerMemory    Issuer = "Memory"
	IssuerWriteback Issuer = "Writeback"
	IssuerSystem    Issuer = "System"
)

// ReqKind distinguishes a Load from a Store request.
type ReqKind uint8

const (
	ReqLoad ReqKind = iota
	ReqStore
)

// Request is compared structurally (issuer + address + width + data) by the
// hierarchy: re-issuing the identical request is how a stalled stage polls
// for completion, and exactly one completion is ever returned for it.
type Request struct {
	Kind    ReqKind
	Issuer  Issuer
	Address uint32
	Width   word.Kind  // meaningful for loads
	Data    word.Value // meaningful for stores
}

// RespKind is the tag of a Response.
type RespKind uint8

const (
	RespMiss RespKind = iota
	RespWait
	RespLoad
	RespStoreComplete
)

func (k RespKind) String() string {
	switch k {
	case RespMiss:
		return "Miss"
	case RespWait:
		return "Wait"
	case RespLoad:
		return "Load"
	case RespStoreComplete:
		return "StoreComplete"
	default:
		return "?"
	}
}

// Response is what System.Request returns.
type Response struct {
	Kind RespKind
	Line Line // valid only when Kind == RespLoad
}

// Line is a fixed-length ordered sequence of words, optionally tagged with
// the aligned start address of its first word. An untagged ("empty") line
// matches no address.
type Line struct {
	Start *uint32
	Words []word.Value
}

func newLine(lineLen int) Line {
	return Line{Words: make([]word.Value, lineLen)}
}

func taggedLine(start uint32, lineLen int) Line {
	l := newLine(lineLen)
	s := start
	l.Start = &s
	return l
}

func (l Line) contains(addr uint32, lineLen int) bool {
	if l.Start == nil {
		return false
	}
	span := uint32(lineLen) * word.MemBlockWidth
	return addr >= *l.Start && addr < *l.Start+span
}

// Get returns the word stored at addr within the line, if the line is
// tagged and addr falls within its span.
func (l Line) Get(addr uint32) (word.Value, bool) {
	if !l.contains(addr, len(l.Words)) {
		return word.Value{}, false
	}
	idx := (addr - *l.Start) / word.MemBlockWidth
	return l.Words[idx], true
}

func (l *Line) write(addr uint32, v word.Value) {
	idx := (addr - *l.Start) / word.MemBlockWidth
	l.Words[idx] = v
}

func (l Line) clone() Line {
	words := make([]word.Value, len(l.Words))
	copy(words, l.Words)
	out := Line{Words: words}
	if l.Start != nil {
		s := *l.Start
		out.Start = &s
	}
	return out
}

type inflightEntry struct {
	req       Request
	remaining uint64
}

// Level is one level of the memory hierarchy: a direct-mapped array of
// lines, a latency, and the single in-flight request (plus FIFO of deferred
// ones) that implements the completable-exactly-once protocol of spec §4.3.
type Level struct {
	lines    []Line
	lineLen  int
	latency  uint64
	isMain   bool
	queue    []Request
	inflight *inflightEntry
}

func newLevel(numLines, lineLen int, latency uint64, isMain bool) *Level {
	lv := &Level{
		lines:   make([]Line, numLines),
		lineLen: lineLen,
		latency: latency,
		isMain:  isMain,
	}
	for i := range lv.lines {
		lv.lines[i] = newLine(lineLen)
		if isMain {
			start := uint32(i * lineLen * word.MemBlockWidth)
			lv.lines[i].Start = &start
		}
	}
	return lv
}

// NumLines reports how many line slots the level has.
func (lv *Level) NumLines() int { return len(lv.lines) }

// Latency reports the level's per-request latency in cycles.
func (lv *Level) Latency() uint64 { return lv.latency }

// IsMain reports whether this is the main-memory level.
func (lv *Level) IsMain() bool { return lv.isMain }

func (lv *Level) slot(addr uint32) int {
	stride := uint32(lv.lineLen) * word.MemBlockWidth
	return int((addr / stride) % uint32(len(lv.lines)))
}

// LineAt returns a copy of the line at the given slot index, for
// inspection accessors.
func (lv *Level) LineAt(slot int) Line {
	return lv.lines[slot].clone()
}

// LevelSnapshot is an immutable copy of one level's state, for the
// system-level MemoryLevel inspection accessor (spec §6).
type LevelSnapshot struct {
	NumLines int
	LineLen  int
	Latency  uint64
	IsMain   bool
	Lines    []Line
}

// Snapshot copies out the level's current contents and configuration.
func (lv *Level) Snapshot() LevelSnapshot {
	lines := make([]Line, len(lv.lines))
	for i := range lv.lines {
		lines[i] = lv.lines[i].clone()
	}
	return LevelSnapshot{
		NumLines: len(lv.lines),
		LineLen:  lv.lineLen,
		Latency:  lv.latency,
		IsMain:   lv.isMain,
		Lines:    lines,
	}
}

// complete is called once req's counter has reached zero: it decides, for a
// load on a non-main level, whether the line slot actually holds the
// requested address (Load) or not (Miss) — a cache level spends its own
// latency finding out either answer, so a structural miss is only revealed
// here, never as a zero-cost shortcut. This is what makes the "a load that
// misses every cache level returns Load no earlier than
// sum(latency[0..N-1]) ticks after first issue" bound exact.
func (lv *Level) complete(req Request, idx int) Response {
	if req.Kind == ReqStore {
		return Response{Kind: RespStoreComplete}
	}
	if !lv.isMain && !lv.lines[idx].contains(req.Address, lv.lineLen) {
		return Response{Kind: RespMiss}
	}
	return Response{Kind: RespLoad, Line: lv.lines[idx].clone()}
}

func (lv *Level) poll(req Request, idx int) Response {
	if lv.inflight != nil {
		if lv.inflight.req == req {
			if lv.inflight.remaining == 0 {
				resp := lv.complete(req, idx)
				lv.inflight = nil
				if len(lv.queue) > 0 {
					next := lv.queue[0]
					lv.queue = lv.queue[1:]
					lv.inflight = &inflightEntry{req: next, remaining: lv.latency}
				}
				return resp
			}
			return Response{Kind: RespWait}
		}
		// Another request currently occupies (or just vacated, pending
		// removal by its own issuer) this level's single in-flight slot.
		lv.queue = append(lv.queue, req)
		return Response{Kind: RespWait}
	}
	lv.inflight = &inflightEntry{req: req, remaining: lv.latency}
	return Response{Kind: RespWait}
}

func (lv *Level) pollLoad(req Request) Response {
	idx := lv.slot(req.Address)
	return lv.poll(req, idx)
}

func (lv *Level) pollStore(req Request) Response {
	idx := lv.slot(req.Address)
	return lv.poll(req, idx)
}

func (lv *Level) fill(line Line) {
	if line.Start == nil {
		return
	}
	idx := lv.slot(*line.Start)
	lv.lines[idx] = line.clone()
}

func (lv *Level) invalidate(addr uint32) {
	if lv.isMain {
		return
	}
	idx := lv.slot(addr)
	lv.lines[idx] = newLine(lv.lineLen)
}

func (lv *Level) writeWord(addr uint32, v word.Value) {
	idx := lv.slot(addr)
	lv.lines[idx].write(addr, v)
}

func (lv *Level) updateClock() {
	if lv.inflight != nil && lv.inflight.remaining > 0 {
		lv.inflight.remaining--
	}
}

// System is the whole memory hierarchy: an ordered list of cache levels
// followed by main memory.
type System struct {
	levels  []*Level
	lineLen int
}

// New constructs a hierarchy of len(capacities) levels: len(capacities)-1
// cache levels followed by one main-memory level. capacities[i] and
// latencies[i] give the number of
// lines and the cycle latency of level i; the last entry is main memory's
// and determines main memory's total line count (it never misses).
//
// Non-monotone capacities or latencies across levels are unusual for a real
// cache hierarchy but are not rejected — only logged — per spec §4.3.
func New(lineLen int, capacities []int, latencies []uint64) (*System, error) {
	if len(capacities) == 0 || len(capacities) != len(latencies) {
		return nil, fmt.Errorf("memory: capacities and latencies must be non-empty and equal length, got %d and %d", len(capacities), len(latencies))
	}
	for i := 1; i < len(capacities); i++ {
		if capacities[i] < capacities[i-1] {
			gflog.For("memory").Warn("non-monotone capacity across levels", "level", i, "prev", capacities[i-1], "this", capacities[i])
		}
		if latencies[i] < latencies[i-1] {
			gflog.For("memory").Warn("non-monotone latency across levels", "level", i, "prev", latencies[i-1], "this", latencies[i])
		}
	}
	sys := &System{lineLen: lineLen}
	for i, n := range capacities {
		isMain := i == len(capacities)-1
		sys.levels = append(sys.levels, newLevel(n, lineLen, latencies[i], isMain))
	}
	return sys, nil
}

// NumLevels returns the number of levels, including main memory.
func (s *System) NumLevels() int { return len(s.levels) }

// Level returns the i'th level for inspection accessors.
func (s *System) Level(i int) *Level { return s.levels[i] }

func (s *System) mainLevel() *Level { return s.levels[len(s.levels)-1] }

// Request issues (or re-polls) a load or store. See spec §4.3 for the full
// protocol; callers must re-issue the identical Request every cycle until
// the response is no longer RespWait/RespMiss-then-continue.
func (s *System) Request(req Request) (Response, error) {
	if req.Address%word.MemBlockWidth != 0 {
		return Response{}, ErrUnalignedAccess
	}
	if req.Kind == ReqStore {
		return s.requestStore(req)
	}
	return s.requestLoad(req)
}

func (s *System) requestLoad(req Request) (Response, error) {
	for i, lvl := range s.levels {
		resp := lvl.pollLoad(req)
		if resp.Kind == RespMiss {
			continue
		}
		if resp.Kind == RespLoad {
			for j := 0; j < i; j++ {
				s.levels[j].fill(resp.Line)
			}
		}
		return resp, nil
	}
	// Unreachable: main memory (the last level) never misses.
	return Response{Kind: RespMiss}, nil
}

func (s *System) requestStore(req Request) (Response, error) {
	main := s.mainLevel()
	resp := main.pollStore(req)
	if resp.Kind == RespStoreComplete {
		main.writeWord(req.Address, req.Data)
		for _, lvl := range s.levels {
			if lvl != main {
				lvl.invalidate(req.Address)
			}
		}
	}
	return resp, nil
}

// Tick decrements every level's in-flight counter by one. This is the sole
// source of time progression for the memory subsystem and must be called
// exactly once per pipeline step.
func (s *System) Tick() {
	for _, lvl := range s.levels {
		lvl.updateClock()
	}
}

// Reset clears every level back to construction-time contents while
// preserving the configured capacities and latencies.
func (s *System) Reset() {
	for i, lvl := range s.levels {
		s.levels[i] = newLevel(len(lvl.lines), lvl.lineLen, lvl.latency, lvl.isMain)
	}
}

// ClearInFlight drops all queued and in-flight requests on every level.
// Called by Writeback when it commits a branch (spec §5: squash clears "the
// memory system's in-flight/queued request sets").
func (s *System) ClearInFlight() {
	for _, lvl := range s.levels {
		lvl.inflight = nil
		lvl.queue = nil
	}
}

// ForceStore writes v directly into main memory, bypassing the request
// protocol. Used by the program loader and by tests.
func (s *System) ForceStore(addr uint32, v word.Value) {
	s.mainLevel().writeWord(addr, v)
}

// ForceLoad reads directly from main memory, bypassing the request
// protocol.
func (s *System) ForceLoad(addr uint32) (word.Value, bool) {
	idx := s.mainLevel().slot(addr)
	return s.mainLevel().lines[idx].Get(addr)
}

// MainCapacity returns the number of addressable words in main memory.
func (s *System) MainCapacity() int {
	return s.mainLevel().NumLines() * s.lineLen
}

// LineLen returns the configured words-per-line.
func (s *System) LineLen() int { return s.lineLen }
