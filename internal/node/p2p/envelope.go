package p2p

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/p2pchain/node/internal/consensus"
)

// Magic is the fixed 4-byte network identifier every envelope carries
// (spec §4.9, §6): F9 BE B4 D9.
var Magic = [4]byte{0xF9, 0xBE, 0xB4, 0xD9}

// CommandBytes is the fixed, zero-padded ASCII command field width.
const CommandBytes = 12

// HeaderBytes is the fixed envelope prefix length: magic+command+len+checksum.
const HeaderBytes = 4 + CommandBytes + 4 + 4

// MaxPayloadBytes bounds a single envelope's payload so a corrupt or
// hostile length field can't trigger an unbounded allocation.
const MaxPayloadBytes = 32 << 20

// Command names (spec §4.9).
const (
	CmdHandshake             = "handshake"
	CmdNodeList              = "nodelist"
	CmdRequestBlock          = "requestBlock"
	CmdNewBlockAvbl          = "newBlockAvbl"
	CmdNewTxMemPool          = "newTxMemPool"
	CmdRequestMemPool        = "requestMemPool"
	CmdRequestSecondaryChain = "requestSecondaryChain"
	CmdRequestNodes          = "requestNodes"
	CmdFinished              = "Finished"
)

// HandshakePayload is the liveness-probe payload: a fixed 4-byte value the
// recipient echoes back unchanged.
var HandshakePayload = [4]byte{0x05, 0xF5, 0xE1, 0x00}

// FinishedMarker is the fixed 4-byte prefix of a `Finished` payload.
var FinishedMarker = [4]byte{0x0A, 0x11, 0x09, 0x07}

// Envelope is one framed peer-protocol message.
type Envelope struct {
	Command string
	Payload []byte
}

// BadEnvelopeError is returned for a checksum mismatch (spec §7).
type BadEnvelopeError struct{ reason string }

func (e *BadEnvelopeError) Error() string { return "p2p: bad envelope: " + e.reason }

// BadMagicError is returned for a magic mismatch (spec §7).
type BadMagicError struct{}

func (e *BadMagicError) Error() string { return "p2p: bad magic" }

func encodeCommand(cmd string) ([CommandBytes]byte, error) {
	var out [CommandBytes]byte
	if len(cmd) == 0 || len(cmd) > CommandBytes {
		return out, fmt.Errorf("p2p: command length out of range: %q", cmd)
	}
	copy(out[:], cmd)
	return out, nil
}

func decodeCommand(raw [CommandBytes]byte) string {
	n := CommandBytes
	for i, b := range raw {
		if b == 0 {
			n = i
			break
		}
	}
	return string(raw[:n])
}

func checksum(payload []byte) [4]byte {
	sum := consensus.Hash256(payload)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// WriteEnvelope frames and writes one message to w.
func WriteEnvelope(w io.Writer, command string, payload []byte) error {
	cmdBytes, err := encodeCommand(command)
	if err != nil {
		return err
	}
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("p2p: payload too large: %d bytes", len(payload))
	}
	c4 := checksum(payload)

	hdr := make([]byte, 0, HeaderBytes)
	hdr = append(hdr, Magic[:]...)
	hdr = append(hdr, cmdBytes[:]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	hdr = append(hdr, lenBuf[:]...)
	hdr = append(hdr, c4[:]...)

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// ReadEnvelope reads exactly one framed message from r. A magic or checksum
// mismatch closes the connection per spec §4.9; the caller is expected to
// do so upon receiving either error.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	hdr := make([]byte, HeaderBytes)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}

	var gotMagic [4]byte
	copy(gotMagic[:], hdr[0:4])
	if gotMagic != Magic {
		return nil, &BadMagicError{}
	}

	var cmdBytes [CommandBytes]byte
	copy(cmdBytes[:], hdr[4:4+CommandBytes])
	command := decodeCommand(cmdBytes)

	lenOff := 4 + CommandBytes
	payloadLen := binary.LittleEndian.Uint32(hdr[lenOff : lenOff+4])
	if payloadLen > MaxPayloadBytes {
		return nil, fmt.Errorf("p2p: payload_len exceeds max: %d", payloadLen)
	}

	var expectedChecksum [4]byte
	copy(expectedChecksum[:], hdr[lenOff+4:lenOff+8])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	if got := checksum(payload); !bytes.Equal(got[:], expectedChecksum[:]) {
		return nil, &BadEnvelopeError{reason: "checksum mismatch"}
	}

	return &Envelope{Command: command, Payload: payload}, nil
}
