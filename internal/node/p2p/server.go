// Package p2p implements the length-prefixed, checksummed peer protocol:
// envelope framing, the fixed command set, and a single-shot
// request/response server and client.
package p2p

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/p2pchain/node/internal/consensus"
	"github.com/p2pchain/node/internal/node"
)

// Backend is the set of shared node state a peer connection handler needs.
// ChainManager satisfies it directly.
type Backend interface {
	Store() node.Store
	Mempool() *node.Mempool
	EnqueueArrival(b *consensus.Block)
	ProcessArrivals() error
	SecondaryBlocks() []*consensus.Block
	Tip() (height uint32, hash [32]byte, ok bool)
}

// Server accepts inbound peer connections and answers exactly one envelope
// per connection before closing it (spec §4.9).
type Server struct {
	backend Backend
}

// NewServer constructs a peer-protocol server backed by backend.
func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Serve accepts connections from ln until it returns an error (typically
// because ln was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.registerPeer(conn)

	env, err := ReadEnvelope(conn)
	if err != nil {
		slog.Debug("p2p: envelope read failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	if err := s.dispatch(conn, env); err != nil {
		slog.Debug("p2p: command handling failed", "command", env.Command, "remote", conn.RemoteAddr(), "err", err)
	}
}

// registerPeer records the remote address as a known node, per spec §4.9's
// "any inbound connection from an ephemeral-looking port registers ip:port
// as a known node".
func (s *Server) registerPeer(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	if port, err := strconv.Atoi(portStr); err != nil || port < 1024 {
		return
	}
	_ = s.backend.Store().AddNode(node.NodeRecord{Address: net.JoinHostPort(host, portStr)})
}

func (s *Server) dispatch(conn net.Conn, env *Envelope) error {
	switch env.Command {
	case CmdHandshake:
		return WriteEnvelope(conn, CmdHandshake, env.Payload)

	case CmdNewTxMemPool:
		tx, _, err := consensus.ParseTx(env.Payload)
		if err != nil {
			slog.Info("p2p: discarding malformed gossip tx", "err", err)
			return nil
		}
		if err := s.backend.Mempool().Add(tx, chainUtxos(s.backend)); err != nil {
			slog.Info("p2p: gossip tx rejected by mempool", "txid", tx.IDHex(), "err", err)
		}
		return nil

	case CmdNewBlockAvbl:
		b, err := consensus.ParseBlock(env.Payload)
		if err != nil {
			slog.Info("p2p: discarding malformed gossip block", "err", err)
			return nil
		}
		s.backend.EnqueueArrival(b)
		// Drain immediately rather than waiting on a mining attempt to lose:
		// a non-mining node never calls MineNextBlock, so this is the only
		// place its arrival buffer ever gets processed.
		if err := s.backend.ProcessArrivals(); err != nil {
			slog.Warn("p2p: processing gossip block arrival failed", "err", err)
		}
		return nil

	case CmdRequestBlock:
		req, err := DecodeRequestBlock(env.Payload)
		if err != nil {
			return err
		}
		return s.serveRequestBlock(conn, req)

	case CmdRequestMemPool:
		for _, tx := range s.backend.Mempool().All() {
			if err := WriteEnvelope(conn, CmdNewTxMemPool, tx.Serialize()); err != nil {
				return err
			}
		}
		return WriteEnvelope(conn, CmdFinished, EncodeFinished(nil))

	case CmdRequestSecondaryChain:
		for _, b := range s.backend.SecondaryBlocks() {
			if err := WriteEnvelope(conn, CmdNewBlockAvbl, b.Serialize()); err != nil {
				return err
			}
		}
		return WriteEnvelope(conn, CmdFinished, EncodeFinished(nil))

	case CmdRequestNodes:
		recs, err := s.backend.Store().GetAllNodes()
		if err != nil {
			return err
		}
		addrs := make([]string, 0, len(recs))
		for _, r := range recs {
			addrs = append(addrs, r.Address)
		}
		payload, err := EncodeNodeList(addrs)
		if err != nil {
			return err
		}
		return WriteEnvelope(conn, CmdNodeList, payload)

	default:
		slog.Debug("p2p: unrecognized command", "command", env.Command)
		return nil
	}
}

func (s *Server) serveRequestBlock(conn net.Conn, req RequestBlockPayload) error {
	height, hash, hasTip := s.backend.Tip()
	sent := 0
	h := req.StartHeight
	var zero [32]byte
	for sent < node.RequestBlockSendLimit {
		blk, ok, err := s.backend.Store().GetBlock(h)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := WriteEnvelope(conn, CmdNewBlockAvbl, blk.Serialize()); err != nil {
			return err
		}
		sent++
		h++
		if req.EndHash != zero && blk.Header.Hash() == req.EndHash {
			break
		}
	}
	var current uint32
	if hasTip {
		current = height
	}
	_ = hash
	return WriteEnvelope(conn, CmdFinished, EncodeFinished(&current))
}

func chainUtxos(b Backend) *consensus.UtxoSet {
	type utxoExposer interface{ UTXOs() *consensus.UtxoSet }
	if ue, ok := b.(utxoExposer); ok {
		return ue.UTXOs()
	}
	return consensus.NewUtxoSet()
}
