// Package command defines the wire types of the storage command program:
// the directive interface served by storage nodes and called by the naming
// server. It is a leaf package so both the outbound client and the naming
// protocol handlers can share it.
package command

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Procedures of the storage command program.
const (
	ProcNull   = 0
	ProcCreate = 1
	ProcDelete = 2
)

// Reply status codes. Any nonzero status means the node refused the call
// at the protocol level; the directive's own outcome travels in Value.
const (
	StatusOK              = 0
	StatusInvalidArgument = 1
)

// PathArgs carries the path argument of CREATE and DELETE.
type PathArgs struct {
	Path string
}

// BoolReply carries the directive outcome: true when the node created or
// deleted the file, false when the request was not applicable.
type BoolReply struct {
	Status uint32
	Value  bool
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
