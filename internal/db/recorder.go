package db

import (
	"context"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

// RecordSession persists the metadata of a session after a turn.
func (q *Queries) RecordSession(ctx context.Context, rec proto.SessionRecord) error {
	return q.UpsertSession(ctx, UpsertSessionParams{
		ID:               rec.ID,
		Engine:           rec.Engine,
		ProjectName:      rec.ProjectName,
		ProjectPath:      rec.ProjectPath,
		ProviderToken:    rec.ProviderToken,
		Model:            rec.Model,
		InputTokens:      max(rec.Usage.InputTokens, 0),
		OutputTokens:     max(rec.Usage.OutputTokens, 0),
		CacheWriteTokens: max(rec.Usage.CacheWriteTokens, 0),
		CacheReadTokens:  max(rec.Usage.CacheReadTokens, 0),
		Cost:             max(rec.Cost.Total, 0),
		MessageCount:     rec.MessageCount,
		ToolCallCount:    rec.ToolCallCount,
		LastPrompt:       rec.LastPrompt,
		Success:          rec.Success,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	})
}
