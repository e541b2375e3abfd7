package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes.
const (
	codeIllegalOperation   = 20
	codeDocumentValidation = 121
	codeNoSuchTransaction  = 251
)

// mapError converts a driver error into a *store.WriteError.
func mapError(err error, op, name string) error {
	if err == nil {
		return nil
	}

	we := &store.WriteError{Op: op, Table: name, Code: store.CodeUnknown, Message: "operation failed", Err: err}

	var cmdErr mongo.CommandError
	switch {
	case mongo.IsDuplicateKeyError(err):
		we.Code = store.CodeUniqueViolation
		we.Message = "duplicate key"
	case errors.As(err, &cmdErr) && cmdErr.Code == codeIllegalOperation:
		we.Code = store.CodeUnsupported
		we.Message = "transactions require a replica set or sharded cluster"
	case errors.As(err, &cmdErr) && cmdErr.Code == codeNoSuchTransaction:
		we.Code = store.CodeConnection
		we.Message = "transaction aborted by the server"
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		we.Code = store.CodeConnection
		we.Message = "connection failed"
	default:
		if code, ok := writeCode(err); ok {
			we.Message = fmt.Sprintf("write error %d", code)
			if code == codeDocumentValidation {
				we.Code = store.CodeCheckViolation
			}
		}
	}
	return we
}

// writeCode returns the code of the first write error in err.
func writeCode(err error) (int, bool) {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		return bwe.WriteErrors[0].Code, true
	}
	var wexc mongo.WriteException
	if errors.As(err, &wexc) && len(wexc.WriteErrors) > 0 {
		return wexc.WriteErrors[0].Code, true
	}
	return 0, false
}
