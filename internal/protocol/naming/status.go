package naming

import (
	"github.com/corfid/namingd/pkg/naming"
)

// StatusOf maps a facade error to its wire status. A nil error is OK;
// errors that did not originate from the naming domain are reported as
// transport failures rather than leaked to the client verbatim.
func StatusOf(err error) uint32 {
	if err == nil {
		return StatusOK
	}

	code, ok := naming.CodeOf(err)
	if !ok {
		return StatusTransportError
	}

	switch code {
	case naming.ErrInvalidArgument:
		return StatusInvalidArgument
	case naming.ErrNotFound:
		return StatusNotFound
	case naming.ErrAlreadyRegistered:
		return StatusAlreadyRegistered
	case naming.ErrNoStorage:
		return StatusNoStorage
	case naming.ErrCancelled:
		return StatusCancelled
	case naming.ErrTransport:
		return StatusTransportError
	default:
		return StatusTransportError
	}
}
