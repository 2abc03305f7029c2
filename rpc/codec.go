package rpc

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"
)

// frameHeaderPreamble is sent once, immediately after the TCP connection is
// established, per spec.md section 6.
var frameHeaderPreamble = []byte{'h', 'r', 'p', 'c', 0x09, 0x00, 0x00}

// negotiationCallID and connectionContextCallID are the reserved call IDs
// used for session-management messages, per spec.md section 4.1.
const (
	negotiationCallID       int32 = -33
	connectionContextCallID int32 = -3
)

// EncodeFrame produces the bit-exact wire representation from spec.md
// section 4.1: a 4-byte big-endian total length, followed by the
// varint-length-delimited header bytes and varint-length-delimited body
// bytes. The length prefix covers everything after itself.
func EncodeFrame(headerBytes, bodyBytes []byte) []byte {
	var inner []byte
	inner = protowire.AppendVarint(inner, uint64(len(headerBytes)))
	inner = append(inner, headerBytes...)
	inner = protowire.AppendVarint(inner, uint64(len(bodyBytes)))
	inner = append(inner, bodyBytes...)

	out := make([]byte, 4, 4+len(inner))
	binary.BigEndian.PutUint32(out, uint32(len(inner)))
	return append(out, inner...)
}

// encodeMessage marshals a header and a Message and frames them together.
func encodeMessage(header *RequestHeader, msg Message) ([]byte, error) {
	headerBytes, err := header.Marshal()
	if err != nil {
		return nil, err
	}
	var bodyBytes []byte
	if msg != nil {
		bodyBytes, err = msg.Marshal()
		if err != nil {
			return nil, err
		}
	}
	return EncodeFrame(headerBytes, bodyBytes), nil
}

// frameLength reads the 4-byte big-endian length prefix from buf, which
// must hold at least 4 bytes.
func frameLength(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf[:4])
}

// decodeFrame parses a varint-delimited ResponseHeader followed by a
// varint-delimited body out of payload, which must be exactly the L bytes
// named by the frame's length prefix (i.e. buf[4:4+L]). It returns the raw
// body bytes (not yet deserialized into an application Message, since the
// caller needs the header's call ID first to find the right Rpc).
func decodeFrame(payload []byte, header *ResponseHeader) (body []byte, err error) {
	headerLen, n := protowire.ConsumeVarint(payload)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	rest := payload[n:]
	if uint64(len(rest)) < headerLen {
		return nil, invalidHeaderf("truncated rpc header: want %d bytes, have %d", headerLen, len(rest))
	}
	if err := header.Unmarshal(rest[:headerLen]); err != nil {
		return nil, err
	}
	rest = rest[headerLen:]

	bodyLen, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	rest = rest[n:]
	if uint64(len(rest)) < bodyLen {
		return nil, invalidHeaderf("truncated rpc body: want %d bytes, have %d", bodyLen, len(rest))
	}
	return rest[:bodyLen], nil
}
