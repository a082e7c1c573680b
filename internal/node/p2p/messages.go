package p2p

import (
	"encoding/binary"
	"fmt"

	"github.com/p2pchain/node/internal/consensus"
)

// EncodeNodeList encodes a `nodelist` payload: varint N then N x
// (u8 len, UTF-8 bytes) host:port strings (spec §4.9).
func EncodeNodeList(addrs []string) ([]byte, error) {
	out := consensus.AppendVarInt(nil, uint64(len(addrs)))
	for _, addr := range addrs {
		if len(addr) > 0xFF {
			return nil, fmt.Errorf("p2p: node address too long: %q", addr)
		}
		out = append(out, byte(len(addr)))
		out = append(out, addr...)
	}
	return out, nil
}

// DecodeNodeList parses a `nodelist` payload.
func DecodeNodeList(payload []byte) ([]string, error) {
	n, rest, err := consensus.ReadVarIntPrefix(payload)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(rest) < 1 {
			return nil, fmt.Errorf("p2p: truncated nodelist")
		}
		l := int(rest[0])
		rest = rest[1:]
		if len(rest) < l {
			return nil, fmt.Errorf("p2p: truncated nodelist entry")
		}
		addrs = append(addrs, string(rest[:l]))
		rest = rest[l:]
	}
	return addrs, nil
}

// RequestBlockPayload is the `requestBlock` payload: a start height and an
// optional end hash (all-zero means "not provided").
type RequestBlockPayload struct {
	StartHeight uint32
	EndHash     [32]byte
}

// EncodeRequestBlock encodes a `requestBlock` payload.
func EncodeRequestBlock(p RequestBlockPayload) []byte {
	out := make([]byte, 0, 4+32)
	var hBuf [4]byte
	binary.LittleEndian.PutUint32(hBuf[:], p.StartHeight)
	out = append(out, hBuf[:]...)
	out = append(out, p.EndHash[:]...)
	return out
}

// DecodeRequestBlock parses a `requestBlock` payload.
func DecodeRequestBlock(payload []byte) (RequestBlockPayload, error) {
	if len(payload) < 4 {
		return RequestBlockPayload{}, fmt.Errorf("p2p: truncated requestBlock payload")
	}
	p := RequestBlockPayload{StartHeight: binary.LittleEndian.Uint32(payload[:4])}
	if len(payload) >= 4+32 {
		copy(p.EndHash[:], payload[4:4+32])
	}
	return p, nil
}

// EncodeFinished encodes a `Finished` payload: the fixed marker plus an
// optional u32 LE param (spec §4.9). Pass nil for no param.
func EncodeFinished(param *uint32) []byte {
	out := make([]byte, 0, 8)
	out = append(out, FinishedMarker[:]...)
	if param != nil {
		var pBuf [4]byte
		binary.LittleEndian.PutUint32(pBuf[:], *param)
		out = append(out, pBuf[:]...)
	}
	return out
}

// DecodeFinished parses a `Finished` payload, returning the param if present.
func DecodeFinished(payload []byte) (param *uint32, err error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("p2p: truncated Finished payload")
	}
	var marker [4]byte
	copy(marker[:], payload[:4])
	if marker != FinishedMarker {
		return nil, fmt.Errorf("p2p: bad Finished marker")
	}
	if len(payload) >= 8 {
		v := binary.LittleEndian.Uint32(payload[4:8])
		return &v, nil
	}
	return nil, nil
}
