package seminar

import "context"

// Repository persists events, registrations and evaluations.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (*Event, error)

	// GetForUpdate reads the event and holds a row lock until the transaction
	// ends, serializing concurrent evaluations of the same seminar.
	GetForUpdate(ctx context.Context, id string) (*Event, error)

	// MarkCompleted persists the completion latch.
	MarkCompleted(ctx context.Context, e *Event) error

	List(ctx context.Context, includeCompleted bool) ([]*Event, error)

	// CreateRegistration returns ErrAlreadyExists for a duplicate (event, student).
	CreateRegistration(ctx context.Context, r *Registration) error

	// GetRegistration returns ErrNotFound when the student is not registered.
	GetRegistration(ctx context.Context, eventID, studentID string) (*Registration, error)

	ListRegistrations(ctx context.Context, eventID string) ([]*Registration, error)

	CreateEvaluation(ctx context.Context, e *Evaluation) error
	ListEvaluations(ctx context.Context, eventID string) ([]*Evaluation, error)
}
