// Package wire implements the length-prefixed JSON framing nodes and
// clients use to exchange packages over TCP (spec §4.6).
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action names one of the fixed set of operations a package requests.
type Action string

const (
	ActionAddBlock                Action = "AddBlock"
	ActionAddTransaction          Action = "AddTransaction"
	ActionAddTransactionFail      Action = "AddTransactionFail"
	ActionAddTransactionSuccess   Action = "AddTransactionSuccess"
	ActionGetBalance              Action = "GetBalance"
	ActionGetBalanceSuccess       Action = "GetBalanceSuccess"
	ActionGetBlockchainLen        Action = "GetBlockchainLen"
	ActionGetBlockchainLenSuccess Action = "GetBlockchainLenSuccess"
	ActionGetBlocks               Action = "GetBlocks"
	ActionGetBlocksSuccess        Action = "GetBlocksSuccess"
	ActionGetLastBlockHash        Action = "GetLastBlockHash"
	ActionGetLastBlockHashSuccess Action = "GetLastBlockHashSuccess"
)

// Package pairs an Action with its string payload.
type Package struct {
	Action Action `json:"action"`
	Data   string `json:"data"`
}

// NewPackage is a small convenience constructor mirroring Package::new.
func NewPackage(action Action, data string) Package {
	return Package{Action: action, Data: data}
}

// Limits bounds how large a package may be and how long a read may block.
type Limits struct {
	MaxSize            int
	ReceiveTimeoutSecs uint
}

// Phase names which step of Send or Receive failed, so callers can
// errors.As into it instead of parsing message text.
type Phase string

const (
	PhaseConnect       Phase = "Connect"
	PhaseWriteLen      Phase = "WriteLen"
	PhaseWriteBytes    Phase = "WriteBytes"
	PhaseReadLen       Phase = "ReadLen"
	PhaseReadBytes     Phase = "ReadBytes"
	PhaseTimeout       Phase = "Timeout"
	PhaseFromJSON      Phase = "FromJson"
	PhaseTooBig        Phase = "TooBig"
	PhaseInvalidAction Phase = "InvalidAction"
)

// Error reports which Phase of a send/receive failed.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("wire: %s", e.Phase)
}

func (e *Error) Unwrap() error { return e.Err }

func phaseErr(phase Phase, err error) error {
	return &Error{Phase: phase, Err: err}
}

// Send serializes p, fails with a TooBig Error if it exceeds
// limits.MaxSize, then writes an 8-byte big-endian length prefix followed
// by the payload.
func Send(conn net.Conn, p Package, limits Limits) error {
	id := uuid.NewString()
	payload, err := json.Marshal(p)
	if err != nil {
		return phaseErr(PhaseFromJSON, err)
	}
	if limits.MaxSize > 0 && len(payload) > limits.MaxSize {
		return phaseErr(PhaseTooBig, nil)
	}

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(len(payload)))
	if _, err := conn.Write(sizeBuf[:]); err != nil {
		return phaseErr(PhaseWriteLen, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return phaseErr(PhaseWriteBytes, err)
	}

	zap.L().Sugar().Debugw("package sent", "id", id, "action", p.Action, "bytes", len(payload))
	return nil
}

// Receive sets the read deadline from limits.ReceiveTimeoutSecs, reads and
// decodes one Package, clears the read deadline on return (a deadline set
// before the call is not restored), and — when
// accepted is non-nil — fails with InvalidAction if the decoded action
// isn't in the set.
func Receive(conn net.Conn, limits Limits, accepted map[Action]bool) (Package, error) {
	id := uuid.NewString()

	if limits.ReceiveTimeoutSecs > 0 {
		deadline := time.Now().Add(time.Duration(limits.ReceiveTimeoutSecs) * time.Second)
		if err := conn.SetReadDeadline(deadline); err != nil {
			return Package{}, phaseErr(PhaseTimeout, err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
		return Package{}, phaseErr(PhaseReadLen, err)
	}
	size := binary.BigEndian.Uint64(sizeBuf[:])
	if limits.MaxSize > 0 && size > uint64(limits.MaxSize) {
		return Package{}, phaseErr(PhaseTooBig, nil)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return Package{}, phaseErr(PhaseReadBytes, err)
	}

	var p Package
	if err := json.Unmarshal(payload, &p); err != nil {
		return Package{}, phaseErr(PhaseFromJSON, err)
	}

	if accepted != nil && !accepted[p.Action] {
		return Package{}, phaseErr(PhaseInvalidAction, fmt.Errorf("unexpected action %q", p.Action))
	}

	zap.L().Sugar().Debugw("package received", "id", id, "action", p.Action, "bytes", size)
	return p, nil
}
