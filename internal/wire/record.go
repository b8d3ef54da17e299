// Package wire defines the fixed 64-byte on-wire and on-disk market-data
// record, its checksum, and its validation rules.
package wire

import (
	"fmt"
	"unsafe"
)

// MessageType tags the type-tagged union carried in a Record's body.
type MessageType uint8

const (
	Trade        MessageType = 1
	Quote        MessageType = 2
	OrderAdd     MessageType = 3
	OrderModify  MessageType = 4
	OrderCancel  MessageType = 5
)

// Size is the fixed wire/disk size of a Record, in bytes.
const Size = 64

// MinSymbolID and MaxSymbolID bound the valid symbol_id range.
const (
	MinSymbolID uint32 = 1
	MaxSymbolID uint32 = 10000
)

// MaxPrice bounds the valid trade price range (exclusive upper bound).
const MaxPrice = 1_000_000.0

// Record is the fixed 64-byte, 8-byte-aligned market-data message.
//
// Field order matches the byte offsets in the specification exactly:
// the compiler never needs to insert padding because every field's
// natural alignment already lines the next field up on the right
// boundary, so the Go layout and the wire layout coincide. Multi-byte
// fields are host byte order by construction — they're copied as raw
// memory, never (en/de)coded through a byte-order-specific codec.
type Record struct {
	SequenceNumber uint64      // offset 0
	Timestamp      uint64      // offset 8, source wall-clock ns since epoch
	Checksum       uint32      // offset 16
	Reserved       uint32      // offset 20, must be zero
	SymbolID       uint32      // offset 24
	Type           MessageType // offset 28
	Pad            [3]byte     // offset 29, must be zero
	Body           [32]byte    // offset 32, type-tagged union
}

func init() {
	var r Record
	if unsafe.Sizeof(r) != Size {
		panic(fmt.Sprintf("wire: Record size drifted: got %d, want %d", unsafe.Sizeof(r), Size))
	}
	if unsafe.Alignof(r) != 8 {
		panic(fmt.Sprintf("wire: Record alignment drifted: got %d, want 8", unsafe.Alignof(r)))
	}
}

// TradeBody is the layout of Body when Type == Trade: price (8), size (4),
// flags (1), 3 bytes padding, 16 bytes reserved/zero.
type TradeBody struct {
	Price float64
	Size  uint32
	Flags uint8
}

// SetTrade encodes a TradeBody into the record's Body and sets Type to Trade.
func (r *Record) SetTrade(t TradeBody) {
	r.Type = Trade
	for i := range r.Body {
		r.Body[i] = 0
	}
	*(*float64)(unsafe.Pointer(&r.Body[0])) = t.Price
	*(*uint32)(unsafe.Pointer(&r.Body[8])) = t.Size
	r.Body[12] = t.Flags
}

// Trade decodes the TradeBody from the record's Body. Only meaningful
// when Type == Trade.
func (r *Record) Trade() TradeBody {
	return TradeBody{
		Price: *(*float64)(unsafe.Pointer(&r.Body[0])),
		Size:  *(*uint32)(unsafe.Pointer(&r.Body[8])),
		Flags: r.Body[12],
	}
}

// words reinterprets the record as its 16 constituent 32-bit host-order
// words, matching the original C++ reinterpret_cast<const uint32_t*>.
func (r *Record) words() *[Size / 4]uint32 {
	return (*[Size / 4]uint32)(unsafe.Pointer(r))
}

// checksumWordIndex is the index, among the 16 32-bit words of a Record,
// of the Checksum field itself (byte offset 16 / 4).
const checksumWordIndex = 4

// ComputeChecksum returns the XOR of every 32-bit word of the record
// except the checksum word itself.
func ComputeChecksum(r *Record) uint32 {
	w := r.words()
	var sum uint32
	for i, word := range w {
		if i == checksumWordIndex {
			continue
		}
		sum ^= word
	}
	return sum
}

// Seal computes and stores the record's checksum before send.
func Seal(r *Record) {
	r.Checksum = ComputeChecksum(r)
}

// Validate reports whether r satisfies every invariant in §3: sequence
// number, symbol id, type, price, size, and (if verifyChecksum) checksum.
func Validate(r *Record, verifyChecksum bool) bool {
	valid, _ := ValidateDetail(r, verifyChecksum)
	return valid
}

// ValidateDetail is Validate, additionally reporting whether the
// specific reason for rejection was a checksum mismatch — callers that
// track a separate checksum_errors counter (§3 Capture Stats) use this
// to distinguish it from the broader invalid count.
func ValidateDetail(r *Record, verifyChecksum bool) (valid bool, checksumFailed bool) {
	if r.SequenceNumber == 0 {
		return false, false
	}
	if r.SymbolID < MinSymbolID || r.SymbolID > MaxSymbolID {
		return false, false
	}
	if r.Type != Trade {
		return false, false
	}
	t := r.Trade()
	if !(t.Price > 0 && t.Price < MaxPrice) {
		return false, false
	}
	if t.Size == 0 {
		return false, false
	}
	if verifyChecksum && r.Checksum != ComputeChecksum(r) {
		return false, true
	}
	return true, false
}

// Decode reinterprets a 64-byte slice as a Record, copying it out. buf
// must be exactly Size bytes; callers stride a datagram or file in
// Size-byte chunks before calling Decode.
func Decode(buf []byte) Record {
	var r Record
	copy((*[Size]byte)(unsafe.Pointer(&r))[:], buf)
	return r
}

// Encode copies r's raw bytes into buf, which must be at least Size bytes.
func Encode(r *Record, buf []byte) {
	copy(buf, (*[Size]byte)(unsafe.Pointer(r))[:])
}
