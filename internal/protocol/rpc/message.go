package rpc

// CallMessage is the header of an RPC call. Field order matches the XDR
// wire layout.
type CallMessage struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// ReplyMessage is the header of an accepted RPC reply. Procedure results
// follow the header on the wire.
type ReplyMessage struct {
	XID        uint32
	MsgType    uint32 // MsgReply
	ReplyState uint32 // MsgAccepted
	Verf       OpaqueAuth
	AcceptStat uint32
}

// OpaqueAuth carries authentication material. The naming protocol does not
// authenticate; both sides send AUTH_NULL with an empty body.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}
