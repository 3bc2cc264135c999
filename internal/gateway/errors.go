package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// ServiceError is a failure reported by, or on the way to, the generative
// service.
type ServiceError struct {
	Subkind    models.ServiceSubkind
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Subkind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Subkind, msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code onto a service subkind.
func ClassifyStatus(code int) models.ServiceSubkind {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return models.SubkindInvalidRequest
	case http.StatusUnauthorized:
		return models.SubkindAuthentication
	case http.StatusForbidden:
		return models.SubkindPermission
	case http.StatusRequestEntityTooLarge:
		return models.SubkindRequestTooLarge
	case http.StatusTooManyRequests:
		return models.SubkindRateLimited
	case 529:
		return models.SubkindOverloaded
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.SubkindUnavailable
	}
	if code >= 500 {
		return models.SubkindUpstreamInternal
	}
	return models.SubkindInvalidRequest
}

// classifyGRPC maps a gRPC status code onto a service subkind.
func classifyGRPC(code codes.Code) models.ServiceSubkind {
	switch code {
	case codes.Unauthenticated:
		return models.SubkindAuthentication
	case codes.PermissionDenied:
		return models.SubkindPermission
	case codes.ResourceExhausted:
		return models.SubkindRateLimited
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return models.SubkindInvalidRequest
	case codes.Unavailable, codes.DeadlineExceeded:
		return models.SubkindUnavailable
	default:
		return models.SubkindUpstreamInternal
	}
}

// classifyGoogle turns an error from the Google client libraries into a
// *ServiceError. Context errors pass through unchanged.
func classifyGoogle(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ServiceError{Subkind: ClassifyStatus(gerr.Code), StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return &ServiceError{Subkind: classifyGRPC(st.Code()), Message: st.Message(), Err: err}
	}
	return &ServiceError{Subkind: models.SubkindUnavailable, Err: err}
}

// ToFailure converts a gateway error into a stage failure. Errors that are
// not *ServiceError are unclassified faults.
func ToFailure(err error) *models.Failure {
	var se *ServiceError
	if errors.As(err, &se) {
		return &models.Failure{Kind: models.KindService, Subkind: se.Subkind, Message: se.Error()}
	}
	return &models.Failure{Kind: models.KindInternal, Message: err.Error()}
}
