package usecase

import (
	"context"
	"fmt"

	"reservations/internal/domain/queue"
)

type DepthInspector interface {
	Depths(ctx context.Context) (queue.Depths, error)
}

type GetQueues struct {
	inspector DepthInspector
}

func NewGetQueues(inspector DepthInspector) *GetQueues {
	return &GetQueues{inspector: inspector}
}

func (uc *GetQueues) Execute(ctx context.Context) (*queue.Depths, error) {
	d, err := uc.inspector.Depths(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	return &d, nil
}
