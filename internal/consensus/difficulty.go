package consensus

import "math/big"

// InitialTarget is the genesis proof-of-work target: 0x0000FFFF * 2^224.
var InitialTarget = func() *big.Int {
	coeff := big.NewInt(0x0000FFFF)
	return new(big.Int).Lsh(coeff, 224)
}()

// RetargetIntervalBlocks is the number of blocks between difficulty
// retargets (spec §4.7: RESET_DIFFICULTY_AFTER_BLOCKS).
const RetargetIntervalBlocks = 10

// targetBlockSpacingSeconds is the "60 * 10" constant from spec §4.7: ten
// blocks are expected to take ten minutes.
const targetBlockSpacingSeconds = 60 * RetargetIntervalBlocks

// BitsToTarget expands a compact 4-byte representation into a 256-bit target.
// Encoding: coeff(3 bytes, little-endian) || exponent(1 byte);
// target = coeff * 256^(exponent-3).
func BitsToTarget(bits [4]byte) *big.Int {
	coeff := new(big.Int).SetBytes([]byte{bits[2], bits[1], bits[0]})
	exp := int(bits[3])
	shift := 8 * (exp - 3)
	if shift >= 0 {
		return new(big.Int).Lsh(coeff, uint(shift))
	}
	return new(big.Int).Rsh(coeff, uint(-shift))
}

// TargetToBits compresses a 256-bit target into its compact 4-byte form.
// The exponent is the byte-length of the trimmed (leading-zero-stripped)
// big-endian target; the coefficient is its leading three bytes. If the
// high coefficient byte would be read as negative (>0x7F) the coefficient
// is shifted right one more byte and the exponent incremented, keeping the
// compact form unsigned.
func TargetToBits(target *big.Int) [4]byte {
	raw := target.Bytes() // big-endian, no leading zeros
	exp := len(raw)

	var coeff [3]byte
	switch {
	case exp <= 3:
		// Right-align short targets into the low bytes of coeff.
		copy(coeff[3-exp:], raw)
	default:
		copy(coeff[:], raw[:3])
	}

	if coeff[0] > 0x7F {
		// Shift the coefficient right by a byte so the sign bit reads as
		// unsigned, and account for the dropped byte in the exponent.
		coeff[0], coeff[1], coeff[2] = 0, coeff[0], coeff[1]
		exp++
	}

	var out [4]byte
	out[0], out[1], out[2] = coeff[2], coeff[1], coeff[0]
	out[3] = byte(exp)
	return out
}

// ClampTarget enforces target <= max, the only clamp spec §4.7 requires
// (the retarget ratio is applied by the caller; this just enforces the
// ceiling against MAX_TARGET == InitialTarget).
func ClampTarget(target, max *big.Int) *big.Int {
	if target.Cmp(max) > 0 {
		return new(big.Int).Set(max)
	}
	return target
}

// Retarget computes the new target per spec §4.7: every
// RESET_DIFFICULTY_AFTER_BLOCKS blocks, ratio = (ts(h-1)-ts(h-10))/(60*10),
// new_target = clamp(old_target * ratio, <= MAX_TARGET).
//
// tsLast is the timestamp of the most recently mined block in the window
// (height h-1); tsFirst is the timestamp RetargetIntervalBlocks blocks
// earlier (height h-10).
func Retarget(oldTarget *big.Int, tsFirst, tsLast uint32) *big.Int {
	elapsed := int64(tsLast) - int64(tsFirst)
	if elapsed <= 0 {
		elapsed = 1
	}
	num := new(big.Int).Mul(oldTarget, big.NewInt(elapsed))
	newTarget := new(big.Int).Div(num, big.NewInt(targetBlockSpacingSeconds))
	return ClampTarget(newTarget, InitialTarget)
}
