package node

import "fmt"

// Protocol selects which wire-protocol operation factory the pool exposes
// to the underlying cache client.
type Protocol int

const (
	ProtocolBinary Protocol = iota
	ProtocolText
)

// ParseProtocol maps the "protocol" configuration option (spec §6) onto a
// Protocol value.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "", "binary":
		return ProtocolBinary, nil
	case "text":
		return ProtocolText, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolText:
		return "text"
	case ProtocolBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// OperationFactory is the protocol-specific factory the pool hands back via
// its operation_factory accessor. The actual memcached text/binary codec is
// provided by the underlying cache client (spec §1's scope cut); this
// factory only carries the selection the pool was constructed with, the
// seam the underlying client switches on.
type OperationFactory interface {
	Protocol() Protocol
}

type textOperationFactory struct{}

func (textOperationFactory) Protocol() Protocol { return ProtocolText }

type binaryOperationFactory struct{}

func (binaryOperationFactory) Protocol() Protocol { return ProtocolBinary }

// TextOperationFactory is the OperationFactory for the textual memcached
// protocol.
var TextOperationFactory OperationFactory = textOperationFactory{}

// BinaryOperationFactory is the OperationFactory for the binary memcached
// protocol.
var BinaryOperationFactory OperationFactory = binaryOperationFactory{}

// NewOperationFactory returns the factory for p.
func NewOperationFactory(p Protocol) OperationFactory {
	if p == ProtocolText {
		return TextOperationFactory
	}

	return BinaryOperationFactory
}
