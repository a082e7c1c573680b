package node

import (
	"math/big"

	"github.com/p2pchain/node/internal/consensus"
)

// MineHeader searches for a nonce such that hash256(header) < target,
// mutating header.Nonce in place (spec §4.6). It polls newBlockSignal
// before every hash attempt — a level-triggered channel that is closed or
// sent to when a competing block has arrived — and returns finished=true
// ("competition lost") the instant the signal fires, without committing a
// nonce. On finished=false, header.Nonce is the winning nonce and
// header.Serialize() hashes to a value <= target.
func MineHeader(header *consensus.BlockHeader, target *big.Int, newBlockSignal <-chan struct{}) (finished bool) {
	for {
		select {
		case <-newBlockSignal:
			return true
		default:
		}

		if header.HashAsInt().Cmp(target) < 0 {
			return false
		}
		header.Nonce++
	}
}
