package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"redisdeck/internal/cmdq"
	"redisdeck/internal/logger"
)

// SelectDB changes the connection's selected database and verifies the
// change by reading the session back, all under one slot acquisition so no
// other panel's command can land between the two steps. The registry's
// displayed scope moves only after verification; on any failure the prior
// value stays and the error surfaces to the caller.
func (d *Deck) SelectDB(ctx context.Context, id string, db int) error {
	token, err := d.registry.AcquireScope(id, d.opts.ScopeGrace)
	if err != nil {
		return err
	}
	defer d.registry.ReleaseScope(token)

	result, err := d.Batch(ctx, id, []cmdq.Step{
		{Command: "SELECT", Args: []any{db}},
		{Command: "CLIENT", Args: []any{"INFO"}},
	})
	if err != nil {
		return fmt.Errorf("scope change to db %d did not complete: %w", db, err)
	}

	verified, err := parseClientInfoDB(result.Steps[1].Value)
	if err != nil {
		return fmt.Errorf("scope change to db %d could not be verified: %w", db, err)
	}
	if verified != db {
		return fmt.Errorf("scope change not applied: server reports db %d, wanted %d", verified, db)
	}

	if err := d.registry.SetDB(token, db); err != nil {
		return err
	}
	logger.Info().Str("connection", id).Int("db", db).Msg("scope change verified")
	return nil
}

// DoInDB runs one command in a specific database: scope change and
// dependent query under a single slot acquisition, so the query cannot see
// another panel's scope. The registry is updated on success since the
// session's selected database really did change.
func (d *Deck) DoInDB(ctx context.Context, id string, db int, command string, args ...any) (any, error) {
	token, err := d.registry.AcquireScope(id, d.opts.ScopeGrace)
	if err != nil {
		return nil, err
	}
	defer d.registry.ReleaseScope(token)

	result, err := d.Batch(ctx, id, []cmdq.Step{
		{Command: "SELECT", Args: []any{db}},
		{Command: command, Args: args},
	})
	if err != nil {
		return nil, fmt.Errorf("query in db %d failed: %w", db, err)
	}

	if err := d.registry.SetDB(token, db); err != nil {
		return nil, err
	}
	return result.Steps[1].Value, nil
}

// parseClientInfoDB extracts the selected database from a CLIENT INFO
// reply, a single line of space-separated key=value fields.
func parseClientInfoDB(reply any) (int, error) {
	text, ok := reply.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected CLIENT INFO reply type %T", reply)
	}
	for _, field := range strings.Fields(text) {
		value, found := strings.CutPrefix(field, "db=")
		if !found {
			continue
		}
		db, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("bad db field %q in CLIENT INFO", field)
		}
		return db, nil
	}
	return 0, fmt.Errorf("no db field in CLIENT INFO reply")
}
