package economy

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing economy operation.
type OperationLog struct {
	Operation      string
	UserID         UserID
	Currency       Currency
	Amount         int64
	IdempotencyKey IdempotencyKey
	Reference      Reference
	Status         string
	Error          error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithIDGenerator replaces the uuid generator used for new records.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(service *Service) {
		if newID != nil {
			service.newID = newID
		}
	}
}
