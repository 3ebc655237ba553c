package frame

import (
	"errors"
	"math/bits"
)

// GSM 07.10 5.4.6.1 variable-length fields: each octet contributes seven
// value bits; the low bit is the EA marker and is set only on the final
// octet. Octets are chained least-significant group first.

// maxLengthOctets bounds the decode loop so that a hostile peer cannot
// claim a length wider than the machine word.
const maxLengthOctets = (bits.UintSize + 6) / 7

var errLengthOverflow = errors.New("rfcomm: length field exceeds machine word width")

var errLengthTruncated = errors.New("rfcomm: truncated length field")

// decodeLength reads an EA-chained length field from the start of buf and
// returns the value and the number of octets consumed.
func decodeLength(buf []byte) (uint, int, error) {
	var length uint
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, errLengthTruncated
		}
		if i >= maxLengthOctets {
			return 0, 0, errLengthOverflow
		}
		octet := buf[i]
		group := uint(octet >> 1)
		shift := 7 * i
		if group<<shift>>shift != group {
			return 0, 0, errLengthOverflow
		}
		length |= group << shift
		if octet&0x01 != 0 {
			return length, i + 1, nil
		}
	}
}

// numLengthOctets returns the minimal number of EA octets needed to encode
// n. Zero still occupies one octet.
func numLengthOctets(n uint) int {
	count := 1
	for n >>= 7; n != 0; n >>= 7 {
		count++
	}
	return count
}

// appendLength appends the EA encoding of n to buf. The final octet
// always carries the EA marker.
func appendLength(buf []byte, n uint) []byte {
	for {
		octet := uint8(n&0x7F) << 1
		n >>= 7
		if n == 0 {
			return append(buf, octet|0x01)
		}
		buf = append(buf, octet)
	}
}
