package frame

// GSM 07.10 Annex B frame check sequence: a reflected CRC-8 over the
// polynomial x^8 + x^2 + x + 1 (reversed representation 0xE0), with
// initial value 0xFF. The FCS octet is the one's complement of the final
// remainder, and a received frame checks out when running the CRC over
// the covered octets plus the FCS octet leaves the residue 0xCF.
//
// SABM, DISC, UA and DM frames cover the address, control and length
// octets; UIH frames cover only the address and control octets
// (RFCOMM 5.1.1).

const fcsPoly = 0xE0

var fcsTable [256]uint8

func init() {
	for i := range fcsTable {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ fcsPoly
			} else {
				crc >>= 1
			}
		}
		fcsTable[i] = crc
	}
}

// calculateFCS returns the FCS octet for the covered portion of a frame.
func calculateFCS(covered []byte) uint8 {
	crc := uint8(0xFF)
	for _, b := range covered {
		crc = fcsTable[crc^b]
	}
	return ^crc
}

// verifyFCS reports whether fcs is the valid check octet for covered.
func verifyFCS(covered []byte, fcs uint8) bool {
	crc := uint8(0xFF)
	for _, b := range covered {
		crc = fcsTable[crc^b]
	}
	return fcsTable[crc^fcs] == 0xCF
}
