package client

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dGate/rpc/common"
)

// Errors of requests the transport did not answer with StatusOK
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal server error")
)

// Errors of prepare requests
var (
	ErrIllegalStatement      = errors.New("statement is not trusted")
	ErrDescriptorParseFailed = errors.New("statement could not be parsed")
	ErrCategoryOutOfSync     = errors.New("category is not known to the server")
)

// Errors of query, get more and write requests
var (
	ErrIllegalPatch   = errors.New("parameters do not match the statement")
	ErrBadServerToken = errors.New("statement handle belongs to another server epoch")
	ErrQueryFailure   = errors.New("query failed")
	ErrNullCursor     = errors.New("cursor does not exist")
	ErrWriteFailure   = errors.New("write was not accepted")
)

// prepareError returns the error of a prepare response code, nil on success
func prepareError(code int32) error {
	switch code {
	case common.CodePrepareSuccess:
		return nil
	case common.CodeIllegalStatement:
		return ErrIllegalStatement
	case common.CodeDescriptorParseFailed:
		return ErrDescriptorParseFailed
	case common.CodeCategoryOutOfSync:
		return ErrCategoryOutOfSync
	default:
		return fmt.Errorf("unknown prepare response code %d", code)
	}
}

// statementError returns the error of a statement response code, nil on success
func statementError(code int32) error {
	switch code {
	case common.CodeSuccess:
		return nil
	case common.CodeIllegalPatch:
		return ErrIllegalPatch
	case common.CodeBadServerToken:
		return ErrBadServerToken
	case common.CodeQueryFailure:
		return ErrQueryFailure
	case common.CodeGetMoreNullCursor:
		return ErrNullCursor
	case common.CodeWriteGenericFailure:
		return ErrWriteFailure
	default:
		return fmt.Errorf("unknown statement response code %d", code)
	}
}
