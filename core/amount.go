package core

import (
	"math/big"
	"math/bits"
)

// Uint128 is an unsigned 128-bit integer backed by two 64-bit words. The
// network contract encodes balances and supplies as little-endian u128
// values (§4.2), so a dedicated fixed-width type keeps arithmetic and wire
// encoding exact without pulling in a big-integer allocation per operation.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Uint128FromUint64 lifts a uint64 into a Uint128.
func Uint128FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// IsZero reports whether x is zero.
func (x Uint128) IsZero() bool { return x.Lo == 0 && x.Hi == 0 }

// Cmp returns -1, 0 or 1 as x is less than, equal to, or greater than y.
func (x Uint128) Cmp(y Uint128) int {
	switch {
	case x.Hi != y.Hi:
		if x.Hi < y.Hi {
			return -1
		}
		return 1
	case x.Lo != y.Lo:
		if x.Lo < y.Lo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Add returns x+y and reports whether the addition overflowed 128 bits.
func (x Uint128) Add(y Uint128) (Uint128, bool) {
	lo, carry := bits.Add64(x.Lo, y.Lo, 0)
	hi, carry := bits.Add64(x.Hi, y.Hi, carry)
	return Uint128{Lo: lo, Hi: hi}, carry != 0
}

// Sub returns x-y and reports whether the subtraction underflowed.
func (x Uint128) Sub(y Uint128) (Uint128, bool) {
	lo, borrow := bits.Sub64(x.Lo, y.Lo, 0)
	hi, borrow := bits.Sub64(x.Hi, y.Hi, borrow)
	return Uint128{Lo: lo, Hi: hi}, borrow != 0
}

// Bytes encodes x as 16 little-endian bytes, the wire format fixed by §4.2.
func (x Uint128) Bytes() [16]byte {
	var out [16]byte
	putU64LE(out[0:8], x.Lo)
	putU64LE(out[8:16], x.Hi)
	return out
}

// Uint128FromBytes decodes 16 little-endian bytes into a Uint128.
func Uint128FromBytes(b [16]byte) Uint128 {
	return Uint128{Lo: u64LE(b[0:8]), Hi: u64LE(b[8:16])}
}

// BigInt converts x to a math/big.Int, for RPC responses that render
// amounts as hex via go-ethereum's hexutil.Big.
func (x Uint128) BigInt() *big.Int {
	v := new(big.Int).SetUint64(x.Hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(x.Lo))
	return v
}

// Uint128FromBigInt truncates v (which must fit in 128 bits) into a
// Uint128.
func Uint128FromBigInt(v *big.Int) Uint128 {
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(v, mask).Uint64()
	hi := new(big.Int).And(new(big.Int).Rsh(v, 64), mask).Uint64()
	return Uint128{Lo: lo, Hi: hi}
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func u64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putU32LE(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func u32LE(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
