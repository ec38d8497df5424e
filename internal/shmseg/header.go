package shmseg

import "sync/atomic"

const (
	// Magic identifies a shmcomm segment header.
	Magic int64 = 0x53484D434F4D4D31
	// Version is the only header layout this module produces or accepts.
	Version int64 = 1

	// HeaderSize is the fixed header region in bytes, 16 int64 cells.
	HeaderSize = 128
	numCells   = HeaderSize / 8

	idxMagic     = 0
	idxVersion   = 1
	idxHead      = 2
	idxTail      = 3
	idxMsgCount  = 4
	idxDropCount = 5
	idxNumSlots  = 6
	idxSlotSize  = 7
)

// Header is a live view over a mapped segment's first 128 bytes. Each
// cell is an independently atomic int64; callers must only touch the
// cells their role owns (see package doc in segment.go).
type Header struct {
	cells *[numCells]int64
}

func headerAt(data []byte) Header {
	return Header{cells: (*[numCells]int64)(unsafePointer(data))}
}

func (h Header) cell(i int) *int64 { return &h.cells[i] }

func (h Header) Magic() int64     { return atomic.LoadInt64(h.cell(idxMagic)) }
func (h Header) Version() int64   { return atomic.LoadInt64(h.cell(idxVersion)) }
func (h Header) NumSlots() int64  { return atomic.LoadInt64(h.cell(idxNumSlots)) }
func (h Header) SlotSize() int64  { return atomic.LoadInt64(h.cell(idxSlotSize)) }
func (h Header) Head() int64      { return atomic.LoadInt64(h.cell(idxHead)) }
func (h Header) Tail() int64      { return atomic.LoadInt64(h.cell(idxTail)) }
func (h Header) MsgCount() int64  { return atomic.LoadInt64(h.cell(idxMsgCount)) }
func (h Header) DropCount() int64 { return atomic.LoadInt64(h.cell(idxDropCount)) }

func (h Header) StoreHead(v int64)  { atomic.StoreInt64(h.cell(idxHead), v) }
func (h Header) StoreTail(v int64)  { atomic.StoreInt64(h.cell(idxTail), v) }
func (h Header) AddMsgCount(d int64)  { atomic.AddInt64(h.cell(idxMsgCount), d) }
func (h Header) AddDropCount(d int64) { atomic.AddInt64(h.cell(idxDropCount), d) }

func (h Header) init(numSlots, slotSize int64) {
	atomic.StoreInt64(h.cell(idxMagic), Magic)
	atomic.StoreInt64(h.cell(idxVersion), Version)
	atomic.StoreInt64(h.cell(idxHead), 0)
	atomic.StoreInt64(h.cell(idxTail), 0)
	atomic.StoreInt64(h.cell(idxMsgCount), 0)
	atomic.StoreInt64(h.cell(idxDropCount), 0)
	atomic.StoreInt64(h.cell(idxNumSlots), numSlots)
	atomic.StoreInt64(h.cell(idxSlotSize), slotSize)
	for i := 8; i < numCells; i++ {
		atomic.StoreInt64(h.cell(i), 0)
	}
}

// Stats is a point-in-time snapshot of a segment's header, as returned
// by the ring package's Stats.
type Stats struct {
	Head, Tail           int64
	NumSlots, SlotSize   int64
	MsgCount, DropCount  int64
	UsedSlots, FreeSlots int64
}
