package node

import "fmt"

// MempoolErrorCode enumerates the admission failures spec §4.4 lists by name.
type MempoolErrorCode string

const (
	ErrStaleTimestamp  MempoolErrorCode = "STALE_TIMESTAMP"
	ErrUnknownInput    MempoolErrorCode = "UNKNOWN_INPUT"
	ErrDoubleSpend     MempoolErrorCode = "DOUBLE_SPEND"
	ErrBadSignature    MempoolErrorCode = "BAD_SIGNATURE"
	ErrInsufficientFee MempoolErrorCode = "INSUFFICIENT_FEE"
)

// MempoolError is returned by Mempool.Add; callers distinguish the kind via
// Code (spec §7: mempool errors are user-visible, surfaced to API callers
// as 400-class responses, or logged on gossip).
type MempoolError struct {
	Code MempoolErrorCode
	Msg  string
}

func (e *MempoolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func mempoolErr(code MempoolErrorCode, msg string) error {
	return &MempoolError{Code: code, Msg: msg}
}

// ChainErrorCode enumerates the chain-manager failures spec §7 lists.
type ChainErrorCode string

const (
	ErrMerkleMismatch      ChainErrorCode = "MERKLE_MISMATCH"
	ErrPoWMismatch         ChainErrorCode = "POW_MISMATCH"
	ErrDifficultyViolation ChainErrorCode = "DIFFICULTY_VIOLATION"
	ErrRewardTooLarge      ChainErrorCode = "REWARD_TOO_LARGE"
	ErrPrevBlockMissing    ChainErrorCode = "PREV_BLOCK_MISSING"
)

// ChainError is returned by block validation / fork-resolution. Per spec §7,
// chain errors encountered during LostCompetition remove the offending
// block from the arrival buffer rather than propagating further.
type ChainError struct {
	Code ChainErrorCode
	Msg  string
}

func (e *ChainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func chainErr(code ChainErrorCode, msg string) error {
	return &ChainError{Code: code, Msg: msg}
}
