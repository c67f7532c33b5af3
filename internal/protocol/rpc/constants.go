package rpc

// RPC program numbers. All three live in the transient range and identify
// the naming server's two inbound interfaces and the storage node's
// directive interface.
const (
	// ProgramNamingService is the client-facing namespace program.
	ProgramNamingService = 400101

	// ProgramNamingRegistration is the storage-node-facing program.
	ProgramNamingRegistration = 400102

	// ProgramStorageCommand is the directive program served by storage
	// nodes; the naming server calls it as a client.
	ProgramStorageCommand = 400103
)

// ProgramVersion is the only version of the three programs.
const ProgramVersion = 1

// RPC message types
const (
	// MsgCall indicates an RPC call message
	MsgCall = 0

	// MsgReply indicates an RPC reply message
	MsgReply = 1
)

// RPC reply states
const (
	// MsgAccepted indicates the RPC call was accepted
	MsgAccepted = 0

	// MsgDenied indicates the RPC call was denied
	MsgDenied = 1
)

// RPC accept status
const (
	// AcceptSuccess indicates successful RPC execution
	AcceptSuccess = 0

	// AcceptProgUnavail indicates an unknown program number
	AcceptProgUnavail = 1

	// AcceptProgMismatch indicates a program version mismatch
	AcceptProgMismatch = 2

	// AcceptProcUnavail indicates an unknown procedure number
	AcceptProcUnavail = 3
)
