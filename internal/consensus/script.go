package consensus

// Opcodes needed for P2PKH evaluation (spec §4.2). No other opcode is
// recognized; the script engine is deliberately minimal.
const (
	OpDup         = 0x76
	OpHash160     = 0xA9
	OpEqualVerify = 0x88
	OpCheckSig    = 0xAC

	opPushData1 = 0x4C
	opPushData2 = 0x4D

	maxPushBytes = 520
)

// ScriptItem is one element of a parsed script: either a small integer
// opcode or a push of up to 520 bytes.
type ScriptItem struct {
	IsOpcode bool
	Opcode   byte
	Data     []byte
}

// Script is an ordered sequence of opcodes/pushes.
type Script []ScriptItem

// NewP2PKHScriptPubKey builds the canonical P2PKH scriptPubKey:
// OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG.
func NewP2PKHScriptPubKey(h160 [20]byte) Script {
	return Script{
		{IsOpcode: true, Opcode: OpDup},
		{IsOpcode: true, Opcode: OpHash160},
		{Data: append([]byte(nil), h160[:]...)},
		{IsOpcode: true, Opcode: OpEqualVerify},
		{IsOpcode: true, Opcode: OpCheckSig},
	}
}

// NewP2PKHScriptSig builds a signature script: <sig+sighash-byte> <pubkey>.
func NewP2PKHScriptSig(sigWithType, pubkey []byte) Script {
	return Script{
		{Data: append([]byte(nil), sigWithType...)},
		{Data: append([]byte(nil), pubkey...)},
	}
}

// IsP2PKH reports whether s is exactly the canonical P2PKH scriptPubKey
// shape, and if so returns the embedded 20-byte hash.
func (s Script) IsP2PKH() (h160 [20]byte, ok bool) {
	if len(s) != 5 {
		return h160, false
	}
	if s[0].IsOpcode && s[0].Opcode == OpDup &&
		s[1].IsOpcode && s[1].Opcode == OpHash160 &&
		!s[2].IsOpcode && len(s[2].Data) == 20 &&
		s[3].IsOpcode && s[3].Opcode == OpEqualVerify &&
		s[4].IsOpcode && s[4].Opcode == OpCheckSig {
		copy(h160[:], s[2].Data)
		return h160, true
	}
	return h160, false
}

// Serialize encodes the script as a varint length prefix followed by the
// opcode bytes and push-data sequences (1-byte length for <75, OP_PUSHDATA1
// for <256, OP_PUSHDATA2 for <=520).
func (s Script) Serialize() []byte {
	var body []byte
	for _, item := range s {
		if item.IsOpcode {
			body = append(body, item.Opcode)
			continue
		}
		n := len(item.Data)
		switch {
		case n < 75:
			body = append(body, byte(n))
		case n < 256:
			body = append(body, opPushData1, byte(n))
		default:
			body = append(body, opPushData2)
			body = AppendU16LE(body, uint16(n))
		}
		body = append(body, item.Data...)
	}
	out := AppendVarInt(nil, uint64(len(body)))
	return append(out, body...)
}

// parseScript reads a varint-length-prefixed script from c.
func parseScript(c *cursor) (Script, error) {
	n, err := c.readVarInt()
	if err != nil {
		return nil, err
	}
	raw, err := c.readExact(int(n))
	if err != nil {
		return nil, err
	}
	return parseScriptBody(raw)
}

func parseScriptBody(raw []byte) (Script, error) {
	var out Script
	pos := 0
	for pos < len(raw) {
		b := raw[pos]
		switch {
		case b < 75:
			pos++
			n := int(b)
			if pos+n > len(raw) {
				return nil, newErr(ErrTruncatedStream, "script: push truncated")
			}
			out = append(out, ScriptItem{Data: append([]byte(nil), raw[pos:pos+n]...)})
			pos += n
		case b == opPushData1:
			pos++
			if pos+1 > len(raw) {
				return nil, newErr(ErrTruncatedStream, "script: OP_PUSHDATA1 truncated")
			}
			n := int(raw[pos])
			pos++
			if n > maxPushBytes || pos+n > len(raw) {
				return nil, newErr(ErrScriptTooLong, "script: OP_PUSHDATA1 overflow")
			}
			out = append(out, ScriptItem{Data: append([]byte(nil), raw[pos:pos+n]...)})
			pos += n
		case b == opPushData2:
			pos++
			if pos+2 > len(raw) {
				return nil, newErr(ErrTruncatedStream, "script: OP_PUSHDATA2 truncated")
			}
			n := int(raw[pos]) | int(raw[pos+1])<<8
			pos += 2
			if n > maxPushBytes || pos+n > len(raw) {
				return nil, newErr(ErrScriptTooLong, "script: OP_PUSHDATA2 overflow")
			}
			out = append(out, ScriptItem{Data: append([]byte(nil), raw[pos:pos+n]...)})
			pos += n
		default:
			out = append(out, ScriptItem{IsOpcode: true, Opcode: b})
			pos++
		}
	}
	return out, nil
}

// Concat appends sigScript's items ahead of pkScript's, the way
// verification combines scriptSig+scriptPubKey into one evaluation.
func Concat(sigScript, pkScript Script) Script {
	out := make(Script, 0, len(sigScript)+len(pkScript))
	out = append(out, sigScript...)
	out = append(out, pkScript...)
	return out
}
