package db

import (
	"context"
)

type Querier interface {
	DeleteSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, limit int64) ([]Session, error)
	ListSessionsByProject(ctx context.Context, arg ListSessionsByProjectParams) ([]Session, error)
	UpsertSession(ctx context.Context, arg UpsertSessionParams) error
}

var _ Querier = (*Queries)(nil)
