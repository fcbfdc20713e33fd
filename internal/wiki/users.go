package wiki

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// AddUser registers a user and adds it to groups. Existing users keep
// their groups and gain the new ones.
func (w *Wiki) AddUser(ctx context.Context, name string, groups ...string) error {
	name = model.NormalizeTitle(name)
	if name == "" {
		return fmt.Errorf("%w: empty user name", ErrInvalidTitle)
	}
	return w.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (name) VALUES (?) ON CONFLICT DO NOTHING`, name); err != nil {
			return fmt.Errorf("add user %s: %w", name, err)
		}
		for _, g := range groups {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_groups (user_name, group_name) VALUES (?, ?) ON CONFLICT DO NOTHING
			`, name, g); err != nil {
				return fmt.Errorf("add %s to %s: %w", name, g, err)
			}
		}
		return nil
	})
}

// Actor returns the actor for a user name with its groups. Unknown and
// empty names yield an actor without groups.
func (w *Wiki) Actor(ctx context.Context, name string) (model.Actor, error) {
	name = model.NormalizeTitle(name)
	if name == "" {
		return model.Anonymous(), nil
	}
	rows, err := w.db.QueryContext(ctx, `
		SELECT group_name FROM user_groups WHERE user_name = ? ORDER BY group_name
	`, name)
	if err != nil {
		return model.Actor{}, fmt.Errorf("groups of %s: %w", name, err)
	}
	groups, err := scanStrings(rows)
	if err != nil {
		return model.Actor{}, fmt.Errorf("groups of %s: %w", name, err)
	}
	return model.Actor{Name: name, Groups: groups}, nil
}

// Users returns every registered user with groups.
func (w *Wiki) Users(ctx context.Context) ([]model.Actor, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]model.Actor, 0, len(names))
	for _, n := range names {
		a, err := w.Actor(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
