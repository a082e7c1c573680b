package p2p

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/p2pchain/node/internal/consensus"
)

// DialTimeout bounds how long a single-shot outbound connection attempt may
// take before giving up (spec §5: peer handlers use a fixed connection
// lifetime).
const DialTimeout = 5 * time.Second

// dial opens a connection to addr with DialTimeout.
func dial(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, DialTimeout)
}

// Handshake dials addr, sends `handshake`, and reports whether the peer
// echoed it back correctly.
func Handshake(addr string) bool {
	conn, err := dial(addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := WriteEnvelope(conn, CmdHandshake, HandshakePayload[:]); err != nil {
		return false
	}
	env, err := ReadEnvelope(conn)
	if err != nil || env.Command != CmdHandshake {
		return false
	}
	return bytes.Equal(env.Payload, HandshakePayload[:])
}

// RequestNodes asks addr for its known node list.
func RequestNodes(addr string) ([]string, error) {
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := WriteEnvelope(conn, CmdRequestNodes, nil); err != nil {
		return nil, err
	}
	env, err := ReadEnvelope(conn)
	if err != nil {
		return nil, err
	}
	if env.Command != CmdNodeList {
		return nil, fmt.Errorf("p2p: expected nodelist, got %q", env.Command)
	}
	return DecodeNodeList(env.Payload)
}

// RequestMemPool asks addr for its mempool contents, calling onTx for each
// transaction streamed back before the `Finished` marker arrives.
func RequestMemPool(addr string, onTx func(*consensus.Tx)) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteEnvelope(conn, CmdRequestMemPool, nil); err != nil {
		return err
	}
	for {
		env, err := ReadEnvelope(conn)
		if err != nil {
			return err
		}
		switch env.Command {
		case CmdNewTxMemPool:
			tx, _, err := consensus.ParseTx(env.Payload)
			if err != nil {
				return err
			}
			onTx(tx)
		case CmdFinished:
			return nil
		default:
			return fmt.Errorf("p2p: unexpected command %q during requestMemPool", env.Command)
		}
	}
}

// RequestSecondaryChain asks addr for its secondary-chain blocks, calling
// onBlock for each one streamed back.
func RequestSecondaryChain(addr string, onBlock func(*consensus.Block)) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteEnvelope(conn, CmdRequestSecondaryChain, nil); err != nil {
		return err
	}
	for {
		env, err := ReadEnvelope(conn)
		if err != nil {
			return err
		}
		switch env.Command {
		case CmdNewBlockAvbl:
			b, err := consensus.ParseBlock(env.Payload)
			if err != nil {
				return err
			}
			onBlock(b)
		case CmdFinished:
			return nil
		default:
			return fmt.Errorf("p2p: unexpected command %q during requestSecondaryChain", env.Command)
		}
	}
}

// RequestBlocks asks addr for up to SEND_LIMIT blocks starting at
// startHeight, calling onBlock for each one streamed back. It returns the
// peer's reported current height (the `Finished` param), if any.
func RequestBlocks(addr string, startHeight uint32, onBlock func(*consensus.Block)) (highestKnown *uint32, err error) {
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload := EncodeRequestBlock(RequestBlockPayload{StartHeight: startHeight})
	if err := WriteEnvelope(conn, CmdRequestBlock, payload); err != nil {
		return nil, err
	}
	for {
		env, err := ReadEnvelope(conn)
		if err != nil {
			return nil, err
		}
		switch env.Command {
		case CmdNewBlockAvbl:
			b, err := consensus.ParseBlock(env.Payload)
			if err != nil {
				return nil, err
			}
			onBlock(b)
		case CmdFinished:
			return DecodeFinished(env.Payload)
		default:
			return nil, fmt.Errorf("p2p: unexpected command %q during requestBlock", env.Command)
		}
	}
}

// BroadcastTx gossips tx to addr.
func BroadcastTx(addr string, tx *consensus.Tx) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return WriteEnvelope(conn, CmdNewTxMemPool, tx.Serialize())
}

// BroadcastBlock gossips b to addr.
func BroadcastBlock(addr string, b *consensus.Block) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return WriteEnvelope(conn, CmdNewBlockAvbl, b.Serialize())
}
