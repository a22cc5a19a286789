package asm

// Memory layout boundaries. Text and data live in user space; the kernel
// segments hold the exception handler and its data.
const (
	TextBase  = 0x00400000
	DataBase  = 0x10010000
	HeapBase  = 0x10040000
	StackTop  = 0x7fffeffc
	KTextBase = 0x80000000
	KDataBase = 0x90000000
	MMIOBase  = 0xffff0000

	TextLimit  = 0x0ffffffc
	DataLimit  = 0x1003ffff
	KTextLimit = 0x8ffffffc
	KDataLimit = 0xfffeffff
)

// ExceptionHandlerAddr is where control transfers on a runtime exception
// when kernel text is present.
const ExceptionHandlerAddr = 0x80000180

type segmentKind int

const (
	segText segmentKind = iota
	segData
	segKText
	segKData
)

func (k segmentKind) String() string {
	switch k {
	case segText:
		return ".text"
	case segData:
		return ".data"
	case segKText:
		return ".ktext"
	case segKData:
		return ".kdata"
	}
	return "?"
}

func (k segmentKind) isText() bool {
	return k == segText || k == segKText
}

// segments tracks the next free address in each of the four segments as
// pass 1 allocates space. Counters persist across files so a multi-file
// assembly lays its pieces end to end.
type segments struct {
	next [4]uint32
	cur  segmentKind
}

func newSegments() *segments {
	s := &segments{}
	s.next[segText] = TextBase
	s.next[segData] = DataBase
	s.next[segKText] = KTextBase
	s.next[segKData] = KDataBase
	return s
}

func (s *segments) pos() uint32 {
	return s.next[s.cur]
}

func (s *segments) advance(n uint32) uint32 {
	addr := s.next[s.cur]
	s.next[s.cur] += n
	return addr
}

// align rounds the current position up to a 2^pow byte boundary.
func (s *segments) align(pow uint32) {
	size := uint32(1) << pow
	s.next[s.cur] = (s.next[s.cur] + size - 1) &^ (size - 1)
}

func (s *segments) inRange() bool {
	switch s.cur {
	case segText:
		return s.next[s.cur] <= TextLimit
	case segData:
		return s.next[s.cur] <= DataLimit
	case segKText:
		return s.next[s.cur] <= KTextLimit
	case segKData:
		return s.next[s.cur] <= KDataLimit
	}
	return false
}
