// Package rpc holds what the hand-written gRPC services share: the JSON codec,
// method descriptors and the mapping from domain errors to status codes.
package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	CodecName   = "json"
	ErrorDomain = "railbooking"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption makes a client call use the JSON codec.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

// Unary builds a method descriptor that decodes Req and dispatches to call.
func Unary[Srv any, Req any](service, method string, call func(Srv, context.Context, *Req) (any, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Srv), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(Srv), ctx, req.(*Req))
			})
		},
	}
}

func Code(err error) codes.Code {
	switch domain.KindOf(err) {
	case "":
		return codes.OK
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindCapacityExceeded:
		return codes.ResourceExhausted
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindInvalidState:
		return codes.FailedPrecondition
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindTransient:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus derives the REST status for err from its gRPC code.
func HTTPStatus(err error) int {
	return runtime.HTTPStatusFromCode(Code(err))
}

// Message hides the details of unclassified failures from callers.
func Message(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return "internal error"
	}
	return err.Error()
}

// Error converts err into a status error carrying an ErrorInfo with the kind.
func Error(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	st := status.New(Code(err), Message(err))
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(domain.KindOf(err)),
		Domain: ErrorDomain,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// Reason extracts the ErrorInfo reason from a status error.
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unavailable {
			level = slog.LevelError
		}
		log.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		return resp, err
	}
}
