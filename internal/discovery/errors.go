package discovery

import (
	"errors"
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/session"
)

var (
	// ErrNoFactory is returned when a dictionary belongs to a namespace
	// without a data type factory
	ErrNoFactory = errors.New("no data type factory for namespace")

	// ErrNoEncodings is returned when a data type has no HasEncoding references
	ErrNoEncodings = errors.New("data type has no encodings")

	// ErrReferenceMultiplicity is returned when a reference that must be
	// unique is missing or repeated
	ErrReferenceMultiplicity = errors.New("unexpected number of references")

	// ErrBadStatus is returned when the server reports a bad status for an
	// item discovery cannot do without
	ErrBadStatus = session.ErrBadStatus

	// ErrDependencyCycle is returned when custom types depend on each other
	ErrDependencyCycle = errors.New("dependency cycle between data types")

	// ErrUnsupportedDefinition is returned for definitions discovery cannot
	// turn into a schema
	ErrUnsupportedDefinition = errors.New("unsupported data type definition")
)

// Error records the operation and node a discovery step failed on
type Error struct {
	Op     string
	NodeID *ua.NodeID
	Err    error
}

func (e *Error) Error() string {
	if e.NodeID == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, node *ua.NodeID, err error) error {
	return &Error{Op: op, NodeID: node, Err: err}
}
