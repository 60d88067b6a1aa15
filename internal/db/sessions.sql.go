package db

import (
	"context"
)

const sessionColumns = `id, engine, project_name, project_path, provider_token, model,
    input_tokens, output_tokens, cache_write_tokens, cache_read_tokens, cost,
    message_count, tool_call_count, last_prompt, success, created_at, updated_at`

const deleteSession = `-- name: DeleteSession :exec
DELETE FROM sessions
WHERE id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, id)
	return err
}

const getSession = `-- name: GetSession :one
SELECT ` + sessionColumns + `
FROM sessions
WHERE id = ? LIMIT 1
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i Session
	err := scanSession(row, &i)
	return i, err
}

const listSessions = `-- name: ListSessions :many
SELECT ` + sessionColumns + `
FROM sessions
ORDER BY updated_at DESC
LIMIT ?
`

func (q *Queries) ListSessions(ctx context.Context, limit int64) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Session{}
	for rows.Next() {
		var i Session
		if err := scanSession(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSessionsByProject = `-- name: ListSessionsByProject :many
SELECT ` + sessionColumns + `
FROM sessions
WHERE project_name = ?
ORDER BY updated_at DESC
LIMIT ?
`

type ListSessionsByProjectParams struct {
	ProjectName string `json:"project_name"`
	Limit       int64  `json:"limit"`
}

func (q *Queries) ListSessionsByProject(ctx context.Context, arg ListSessionsByProjectParams) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessionsByProject, arg.ProjectName, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Session{}
	for rows.Next() {
		var i Session
		if err := scanSession(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO sessions (` + sessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    provider_token = excluded.provider_token,
    model = excluded.model,
    input_tokens = excluded.input_tokens,
    output_tokens = excluded.output_tokens,
    cache_write_tokens = excluded.cache_write_tokens,
    cache_read_tokens = excluded.cache_read_tokens,
    cost = excluded.cost,
    message_count = excluded.message_count,
    tool_call_count = excluded.tool_call_count,
    last_prompt = excluded.last_prompt,
    success = excluded.success,
    updated_at = excluded.updated_at
`

type UpsertSessionParams struct {
	ID               string  `json:"id"`
	Engine           string  `json:"engine"`
	ProjectName      string  `json:"project_name"`
	ProjectPath      string  `json:"project_path"`
	ProviderToken    string  `json:"provider_token"`
	Model            string  `json:"model"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	Cost             float64 `json:"cost"`
	MessageCount     int64   `json:"message_count"`
	ToolCallCount    int64   `json:"tool_call_count"`
	LastPrompt       string  `json:"last_prompt"`
	Success          bool    `json:"success"`
	CreatedAt        int64   `json:"created_at"`
	UpdatedAt        int64   `json:"updated_at"`
}

func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID,
		arg.Engine,
		arg.ProjectName,
		arg.ProjectPath,
		arg.ProviderToken,
		arg.Model,
		arg.InputTokens,
		arg.OutputTokens,
		arg.CacheWriteTokens,
		arg.CacheReadTokens,
		arg.Cost,
		arg.MessageCount,
		arg.ToolCallCount,
		arg.LastPrompt,
		arg.Success,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, i *Session) error {
	return row.Scan(
		&i.ID,
		&i.Engine,
		&i.ProjectName,
		&i.ProjectPath,
		&i.ProviderToken,
		&i.Model,
		&i.InputTokens,
		&i.OutputTokens,
		&i.CacheWriteTokens,
		&i.CacheReadTokens,
		&i.Cost,
		&i.MessageCount,
		&i.ToolCallCount,
		&i.LastPrompt,
		&i.Success,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}
