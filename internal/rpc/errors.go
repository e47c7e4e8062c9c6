package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/roach88/streamcore/internal/protocol"
)

var statusCodes = map[protocol.ErrorCode]codes.Code{
	protocol.CodeInvalidArgument:      codes.InvalidArgument,
	protocol.CodeNotFound:             codes.NotFound,
	protocol.CodeAlreadyExists:        codes.AlreadyExists,
	protocol.CodePermissionDenied:     codes.PermissionDenied,
	protocol.CodeBadEvent:             codes.InvalidArgument,
	protocol.CodeBadEventSignature:    codes.InvalidArgument,
	protocol.CodeBadEventHash:         codes.InvalidArgument,
	protocol.CodeDuplicateEvent:       codes.AlreadyExists,
	protocol.CodeMiniblockTooNew:      codes.FailedPrecondition,
	protocol.CodeBadPrevMiniblockHash: codes.FailedPrecondition,
	protocol.CodeBadSyncCookie:        codes.InvalidArgument,
	protocol.CodeNotTrimmable:         codes.FailedPrecondition,
	protocol.CodeCanceled:             codes.Canceled,
	protocol.CodeUnavailable:          codes.Unavailable,
	protocol.CodeInternal:             codes.Internal,
}

// protocolCodes maps bare gRPC statuses, such as transport failures, back
// to protocol codes.
var protocolCodes = map[codes.Code]protocol.ErrorCode{
	codes.InvalidArgument:  protocol.CodeInvalidArgument,
	codes.NotFound:         protocol.CodeNotFound,
	codes.AlreadyExists:    protocol.CodeAlreadyExists,
	codes.PermissionDenied: protocol.CodePermissionDenied,
	codes.Canceled:         protocol.CodeCanceled,
	codes.Unavailable:      protocol.CodeUnavailable,
	codes.DeadlineExceeded: protocol.CodeUnavailable,
}

// toStatus converts a service error to a gRPC status. The protocol code and
// stream id ride along as details.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	code, ok := statusCodes[pe.Code]
	if !ok {
		code = codes.Unknown
	}
	msg := pe.Message
	if pe.Err != nil {
		msg += ": " + pe.Err.Error()
	}
	st, derr := status.New(code, msg).WithDetails(wrapperspb.String(string(pe.Code)), wrapperspb.String(pe.StreamID))
	if derr != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}

// fromStatus converts a gRPC error back to a *protocol.Error.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	pe := &protocol.Error{Message: st.Message()}
	var details []string
	for _, d := range st.Details() {
		if s, ok := d.(*wrapperspb.StringValue); ok {
			details = append(details, s.GetValue())
		}
	}
	if len(details) > 0 {
		pe.Code = protocol.ErrorCode(details[0])
		if len(details) > 1 {
			pe.StreamID = details[1]
		}
		return pe
	}
	if code, ok := protocolCodes[st.Code()]; ok {
		pe.Code = code
	} else {
		pe.Code = protocol.CodeInternal
	}
	return pe
}
