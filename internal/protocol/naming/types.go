package naming

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Paths travel as their canonical string form; handles travel as
// host/port pairs. Field order in these structs is the XDR wire layout.

// PathArgs carries the single path argument of most service procedures.
type PathArgs struct {
	Path string
}

// LockArgs carries the arguments of LOCK and UNLOCK.
type LockArgs struct {
	Path      string
	Exclusive bool
}

// StatusReply is the result of procedures that return nothing but status.
type StatusReply struct {
	Status uint32
}

// BoolReply is the result of the boolean-returning procedures. Value is
// meaningful only when Status is OK.
type BoolReply struct {
	Status uint32
	Value  bool
}

// ListReply is the result of LIST.
type ListReply struct {
	Status  uint32
	Entries []string
}

// HandleReply is the result of GET_STORAGE.
type HandleReply struct {
	Status uint32
	Host   string
	Port   uint32
}

// RegisterArgs carries a storage node's registration: both handle
// addresses and the node's file list.
type RegisterArgs struct {
	StorageHost string
	StoragePort uint32
	CommandHost string
	CommandPort uint32
	Files       []string
}

// RegisterReply returns the duplicate paths the node must delete locally.
type RegisterReply struct {
	Status     uint32
	Duplicates []string
}

// Encode marshals a wire structure to XDR bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode unmarshals XDR bytes into a wire structure.
func Decode(data []byte, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
