package consensus

import "bytes"

// Evaluate runs script against a single byte-string stack, with z as the
// sighash digest available to OP_CHECKSIG. Returns true iff the stack ends
// non-empty with a truthy top element and no operation failed. Any opcode
// other than the four P2PKH operators is a failure (spec §4.2): this engine
// deliberately implements no other Bitcoin-script semantics.
func Evaluate(script Script, z [32]byte) bool {
	var stack [][]byte
	push := func(b []byte) { stack = append(stack, b) }
	pop := func() ([]byte, bool) {
		if len(stack) == 0 {
			return nil, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, true
	}

	for _, item := range script {
		if !item.IsOpcode {
			push(item.Data)
			continue
		}
		switch item.Opcode {
		case OpDup:
			top, ok := pop()
			if !ok {
				return false
			}
			push(top)
			push(top)
		case OpHash160:
			top, ok := pop()
			if !ok {
				return false
			}
			h := Hash160(top)
			push(h[:])
		case OpEqualVerify:
			a, ok1 := pop()
			b, ok2 := pop()
			if !ok1 || !ok2 || !bytes.Equal(a, b) {
				return false
			}
		case OpCheckSig:
			pubkeyBytes, ok1 := pop()
			sigWithType, ok2 := pop()
			if !ok1 || !ok2 || len(sigWithType) == 0 {
				return false
			}
			pubkey, err := ParsePublicKey(pubkeyBytes)
			if err != nil {
				return false
			}
			der := sigWithType[:len(sigWithType)-1]
			if VerifySignature(pubkey, z, der) {
				push([]byte{1})
			} else {
				push([]byte{})
			}
		default:
			return false
		}
	}

	top, ok := pop()
	if !ok {
		return false
	}
	return isTruthy(top)
}

func isTruthy(b []byte) bool {
	for i, v := range b {
		if v != 0 {
			// Negative-zero encoding (trailing 0x80 as the only nonzero
			// byte) is treated as false, same as Bitcoin Script's CastToBool.
			if i == len(b)-1 && v == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}
