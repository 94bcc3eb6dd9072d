package common

import "fmt"

// RPCErrCode is the error code carried by an "error" reply. The numbering
// follows the Maelstrom protocol so harnesses can classify failures.
type RPCErrCode int

const (
	// Timeout means the requested operation did not complete in time.
	Timeout RPCErrCode = 0
	// NodeNotFound means the destination node does not exist.
	NodeNotFound RPCErrCode = 1
	// NotSupported means the request type is unknown to this node.
	NotSupported RPCErrCode = 10
	// TemporarilyUnavailable means the node cannot serve the request yet,
	// typically because it has not been initialised.
	TemporarilyUnavailable RPCErrCode = 11
	// MalformedRequest means the request could not be decoded or was missing
	// a required field.
	MalformedRequest RPCErrCode = 12
	// Crash is the catch-all for internal failures.
	Crash RPCErrCode = 13
	// Abort means the operation was aborted.
	Abort RPCErrCode = 14
	// PreconditionFailed means the request conflicts with the node's state.
	PreconditionFailed RPCErrCode = 22
)

// RPCErr is an error that is reported to the requester as an "error" reply.
type RPCErr struct {
	code RPCErrCode
	text string
}

// NewRPCErr ...
func NewRPCErr(code RPCErrCode, text string) RPCErr {
	return RPCErr{
		code: code,
		text: text,
	}
}

// Code returns the protocol error code.
func (e RPCErr) Code() RPCErrCode {
	return e.code
}

// Text returns the human readable part of the error.
func (e RPCErr) Text() string {
	return e.text
}

// Error implements the error interface.
func (e RPCErr) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.code, e.text)
}

// IsRPC checks that an error is of type RPCErr and that its code matches the
// provided one.
func IsRPC(err error, c RPCErrCode) bool {
	rpcErr, ok := err.(RPCErr)
	return ok && rpcErr.code == c
}
