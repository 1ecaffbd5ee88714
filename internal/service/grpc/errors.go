package grpcsvc

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorDomain — значение ErrorInfo.Domain в ответах сервиса.
const ErrorDomain = "storefront"

// toStatus переводит доменную ошибку в gRPC-статус с парой (kind, reason) в ErrorInfo.
// Внутренние ошибки наружу не раскрываются.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isDomainError(err) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request deadline exceeded")
	}

	kind := domain.KindOf(err)
	code := domain.CodeOf(err)
	message := err.Error()

	var grpcCode codes.Code
	switch kind {
	case domain.KindValidation:
		grpcCode = codes.InvalidArgument
	case domain.KindBusiness:
		grpcCode = codes.FailedPrecondition
	case domain.KindNotFound:
		grpcCode = codes.NotFound
	case domain.KindConflict:
		grpcCode = codes.Aborted
	default:
		grpcCode = codes.Internal
		message = "internal error"
	}

	st := status.New(grpcCode, message)
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   code,
		Domain:   ErrorDomain,
		Metadata: map[string]string{"kind": string(kind)},
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

func isDomainError(err error) bool {
	return domain.KindOf(err) != domain.KindInternal
}

// ReasonOf извлекает код причины из ErrorInfo статуса.
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
