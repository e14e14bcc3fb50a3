package header

import "encoding/binary"

// TCP option-kind bytes (RFC 793, RFC 1323/7323).
const (
	TCPOptionKindEOL       = 0
	TCPOptionKindNOP       = 1
	TCPOptionKindMSS       = 2
	TCPOptionKindWS        = 3
	TCPOptionKindSACKPerm  = 4
	TCPOptionKindSACK      = 5
	TCPOptionKindTS        = 8
)

// Fixed option lengths, including the kind and length bytes.
const (
	tcpOptionMSSLen = 4
	tcpOptionWSLen  = 3
	tcpOptionTSLen  = 10
)

// TCPMaxWindowScale is the largest shift RFC 1323 permits.
const TCPMaxWindowScale = 14

// TCPSynOptions holds the options a SYN or SYN-ACK segment carries, as
// parsed by ParseSynOptions.
type TCPSynOptions struct {
	MSS           uint16
	WindowScale   int // -1 if the peer did not send a window-scale option
	SACKPermitted bool
	TS            bool
	TSVal         uint32
	TSEcr         uint32
}

// ParseSynOptions walks the TCP options area of a SYN or SYN-ACK segment,
// extracting the options that affect connection setup. Unknown options
// with a valid length are skipped; a malformed option (bad length, or
// running past the end of opts) ends the walk, and the options parsed up
// to that point are returned.
func ParseSynOptions(opts []byte, isAck bool) TCPSynOptions {
	so := TCPSynOptions{WindowScale: -1}

	for i := 0; i < len(opts); {
		switch opts[i] {
		case TCPOptionKindEOL:
			return so
		case TCPOptionKindNOP:
			i++
		case TCPOptionKindMSS:
			if i+tcpOptionMSSLen > len(opts) || opts[i+1] != tcpOptionMSSLen {
				return so
			}
			so.MSS = binary.BigEndian.Uint16(opts[i+2:])
			i += tcpOptionMSSLen
		case TCPOptionKindWS:
			if i+tcpOptionWSLen > len(opts) || opts[i+1] != tcpOptionWSLen {
				return so
			}
			shift := int(opts[i+2])
			if shift > TCPMaxWindowScale {
				shift = TCPMaxWindowScale
			}
			so.WindowScale = shift
			i += tcpOptionWSLen
		case TCPOptionKindTS:
			if i+tcpOptionTSLen > len(opts) || opts[i+1] != tcpOptionTSLen {
				return so
			}
			so.TS = true
			so.TSVal = binary.BigEndian.Uint32(opts[i+2:])
			if isAck {
				so.TSEcr = binary.BigEndian.Uint32(opts[i+6:])
			}
			i += tcpOptionTSLen
		case TCPOptionKindSACKPerm:
			if i+2 > len(opts) || opts[i+1] != 2 {
				return so
			}
			so.SACKPermitted = true
			i += 2
		default:
			if i+1 >= len(opts) {
				return so
			}
			l := int(opts[i+1])
			if l < 2 {
				return so
			}
			i += l
		}
	}
	return so
}

// EncodeMSSOption writes a 4-byte MSS option into b, which must be at
// least 4 bytes long.
func EncodeMSSOption(mss uint16, b []byte) int {
	b[0] = TCPOptionKindMSS
	b[1] = tcpOptionMSSLen
	binary.BigEndian.PutUint16(b[2:], mss)
	return tcpOptionMSSLen
}

// EncodeWSOption writes a 3-byte window-scale option into b, preceded by
// a leading NOP so the option takes 4 bytes in all.
func EncodeWSOption(shift uint8, b []byte) int {
	b[0] = TCPOptionKindNOP
	b[1] = TCPOptionKindWS
	b[2] = tcpOptionWSLen
	b[3] = shift
	return 1 + tcpOptionWSLen
}

// EncodeTSOption writes a 10-byte timestamp option into b, padded with two
// leading NOPs to keep it 4-byte aligned.
func EncodeTSOption(val, ecr uint32, b []byte) int {
	b[0] = TCPOptionKindNOP
	b[1] = TCPOptionKindNOP
	b[2] = TCPOptionKindTS
	b[3] = tcpOptionTSLen
	binary.BigEndian.PutUint32(b[4:], val)
	binary.BigEndian.PutUint32(b[8:], ecr)
	return 2 + tcpOptionTSLen
}

// EncodeSACKPermittedOption writes a 2-byte SACK-permitted option into b.
func EncodeSACKPermittedOption(b []byte) int {
	b[0] = TCPOptionKindSACKPerm
	b[1] = 2
	return 2
}

// PadOptions rounds an options length n up to a multiple of 4 bytes and
// returns it. It writes nothing; the caller fills the padding with NOPs.
func PadOptions(n int) int {
	for n%4 != 0 {
		n++
	}
	return n
}
