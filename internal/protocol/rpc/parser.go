package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ReadCall parses the header of an RPC call message.
func ReadCall(data []byte) (*CallMessage, error) {
	call := &CallMessage{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), call); err != nil {
		return nil, fmt.Errorf("unmarshal RPC call: %w", err)
	}
	if call.MsgType != MsgCall {
		return nil, fmt.Errorf("expected CALL (%d), got %d", MsgCall, call.MsgType)
	}
	return call, nil
}

// ReadData returns the procedure arguments following the call header.
func ReadData(message []byte, call *CallMessage) ([]byte, error) {
	// Fixed header fields: XID, MsgType, RPCVersion, Program, Version,
	// Procedure = 6 * 4 bytes.
	offset := 24

	for i := 0; i < 2; i++ { // cred, then verf
		if offset+8 > len(message) {
			return nil, fmt.Errorf("truncated RPC call header")
		}
		offset += 4 // flavor
		bodyLen := binary.BigEndian.Uint32(message[offset : offset+4])
		offset += 4 + int(bodyLen)
		offset += int((4 - (bodyLen % 4)) % 4)
	}

	if offset > len(message) {
		return nil, fmt.Errorf("truncated RPC call header")
	}
	if offset == len(message) {
		return []byte{}, nil
	}
	return message[offset:], nil
}

// MakeReply frames an accepted reply carrying the given result data,
// including the record-marking fragment header.
func MakeReply(xid uint32, acceptStat uint32, data []byte) ([]byte, error) {
	reply := ReplyMessage{
		XID:        xid,
		MsgType:    MsgReply,
		ReplyState: MsgAccepted,
		Verf: OpaqueAuth{
			Flavor: 0, // AUTH_NULL
			Body:   []byte{},
		},
		AcceptStat: acceptStat,
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &reply); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	buf.Write(data)

	return frame(buf.Bytes()), nil
}

// MakeSuccessReply frames an accepted, successful reply.
func MakeSuccessReply(xid uint32, data []byte) ([]byte, error) {
	return MakeReply(xid, AcceptSuccess, data)
}

// MakeCall frames a call to the given program and procedure with the given
// argument data, including the record-marking fragment header. Used by the
// naming server when it acts as a client against storage nodes.
func MakeCall(xid, program, version, procedure uint32, data []byte) ([]byte, error) {
	call := CallMessage{
		XID:        xid,
		MsgType:    MsgCall,
		RPCVersion: 2,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       OpaqueAuth{Flavor: 0, Body: []byte{}},
		Verf:       OpaqueAuth{Flavor: 0, Body: []byte{}},
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &call); err != nil {
		return nil, fmt.Errorf("marshal call: %w", err)
	}
	buf.Write(data)

	return frame(buf.Bytes()), nil
}

// ReadReply parses an accepted reply message and returns the result data
// following the header.
func ReadReply(message []byte) (*ReplyMessage, []byte, error) {
	reader := bytes.NewReader(message)
	reply := &ReplyMessage{}
	if _, err := xdr.Unmarshal(reader, reply); err != nil {
		return nil, nil, fmt.Errorf("unmarshal RPC reply: %w", err)
	}
	if reply.MsgType != MsgReply {
		return nil, nil, fmt.Errorf("expected REPLY (%d), got %d", MsgReply, reply.MsgType)
	}
	if reply.ReplyState != MsgAccepted {
		return nil, nil, fmt.Errorf("RPC call denied")
	}
	if reply.AcceptStat != AcceptSuccess {
		return nil, nil, fmt.Errorf("RPC call not successful: accept status %d", reply.AcceptStat)
	}

	data := message[len(message)-reader.Len():]
	return reply, data, nil
}

// frame prepends the record-marking header: high bit marks the last
// fragment, low 31 bits carry the length.
func frame(payload []byte) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 0x80000000|uint32(len(payload)))
	return append(header, payload...)
}
