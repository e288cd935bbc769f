package domain

import "context"

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	List(ctx context.Context, q Query) (ListResult, error)
	Get(ctx context.Context, id string) (Hearing, error)
	Dates(ctx context.Context) ([]DateCount, error)
}
