package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// ErrInvalidTitle is returned for titles with no name part.
var ErrInvalidTitle = errors.New("invalid title")

// Item resolves a title. Pages that do not exist come back with
// Exists=false and ID 0.
func (w *Wiki) Item(ctx context.Context, title string) (model.Item, error) {
	ns, name := model.SplitTitle(title)
	if name == "" {
		return model.Item{}, fmt.Errorf("%w: %q", ErrInvalidTitle, title)
	}
	item := model.Item{Namespace: ns, Name: name}
	err := w.db.QueryRowContext(ctx, `
		SELECT page_id FROM pages WHERE namespace = ? AND title = ?
	`, int(ns), name).Scan(&item.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return item, nil
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("lookup page %s: %w", item.FullName(), err)
	}
	item.Exists = true
	return item, nil
}

// ItemByID returns the page with the given id.
func (w *Wiki) ItemByID(ctx context.Context, id int64) (model.Item, error) {
	item := model.Item{ID: id, Exists: true}
	var ns int
	err := w.db.QueryRowContext(ctx, `SELECT namespace, title FROM pages WHERE page_id = ?`, id).Scan(&ns, &item.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("page %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("lookup page %d: %w", id, err)
	}
	item.Namespace = model.NamespaceID(ns)
	return item, nil
}

// Pages returns every existing page ordered by namespace and title.
func (w *Wiki) Pages(ctx context.Context) ([]model.Item, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT page_id, namespace, title FROM pages ORDER BY namespace, title`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Item
	for rows.Next() {
		item := model.Item{Exists: true}
		var ns int
		if err := rows.Scan(&item.ID, &ns, &item.Name); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		item.Namespace = model.NamespaceID(ns)
		out = append(out, item)
	}
	return out, rows.Err()
}

// SaveRevision stores text as a new revision of title, creating the page
// on first save. It does not touch the link tables; callers index the
// content they want readers to see.
func (w *Wiki) SaveRevision(ctx context.Context, title, author, text string) (model.Item, model.Revision, error) {
	ns, name := model.SplitTitle(title)
	if name == "" {
		return model.Item{}, model.Revision{}, fmt.Errorf("%w: %q", ErrInvalidTitle, title)
	}
	item := model.Item{Namespace: ns, Name: name, Exists: true}
	rev := model.Revision{Author: author, Timestamp: w.timestamp()}

	err := w.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		item.ID, rev.ID, err = saveRevisionTx(ctx, tx, item, rev, text)
		return err
	})
	if err != nil {
		return model.Item{}, model.Revision{}, fmt.Errorf("save %s: %w", item.FullName(), err)
	}
	rev.ItemID = item.ID
	return item, rev, nil
}

func saveRevisionTx(ctx context.Context, tx *sql.Tx, item model.Item, rev model.Revision, text string) (int64, model.RevisionID, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (namespace, title) VALUES (?, ?)
		ON CONFLICT (namespace, title) DO NOTHING
	`, int(item.Namespace), item.Name); err != nil {
		return 0, 0, fmt.Errorf("create page: %w", err)
	}
	var pageID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT page_id FROM pages WHERE namespace = ? AND title = ?
	`, int(item.Namespace), item.Name).Scan(&pageID); err != nil {
		return 0, 0, fmt.Errorf("read page id: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (page_id, author, timestamp, text) VALUES (?, ?, ?, ?)
	`, pageID, rev.Author, rev.Timestamp, text)
	if err != nil {
		return 0, 0, fmt.Errorf("insert revision: %w", err)
	}
	revID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pages SET latest_rev = ? WHERE page_id = ?`, revID, pageID); err != nil {
		return 0, 0, fmt.Errorf("update latest revision: %w", err)
	}
	return pageID, model.RevisionID(revID), nil
}

// Revisions returns the page history, newest first.
func (w *Wiki) Revisions(ctx context.Context, item model.Item) ([]model.Revision, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT rev_id, author, timestamp FROM revisions WHERE page_id = ? ORDER BY rev_id DESC
	`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", item.FullName(), err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Revision
	for rows.Next() {
		r := model.Revision{ItemID: item.ID}
		if err := rows.Scan(&r.ID, &r.Author, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRevision returns the newest revision id of a page.
func (w *Wiki) LatestRevision(ctx context.Context, item model.Item) (model.RevisionID, error) {
	var rev int64
	err := w.db.QueryRowContext(ctx, `SELECT latest_rev FROM pages WHERE page_id = ?`, item.ID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("latest revision of %s: %w", item.FullName(), err)
	}
	return model.RevisionID(rev), nil
}

// RevisionExists reports whether rev is a stored revision of the page.
func (w *Wiki) RevisionExists(ctx context.Context, item model.Item, rev model.RevisionID) (bool, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revisions WHERE rev_id = ? AND page_id = ?
	`, int64(rev), item.ID).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup revision %d: %w", rev, err)
	}
	return n > 0, nil
}

// RevisionText returns the text of a revision of the page.
func (w *Wiki) RevisionText(ctx context.Context, item model.Item, rev model.RevisionID) (string, error) {
	var text string
	err := w.db.QueryRowContext(ctx, `
		SELECT text FROM revisions WHERE rev_id = ? AND page_id = ?
	`, int64(rev), item.ID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("revision %d of %s: %w", rev, item.FullName(), model.ErrRevisionNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read revision %d: %w", rev, err)
	}
	return text, nil
}

// LatestText returns the newest revision of the page and its text.
func (w *Wiki) LatestText(ctx context.Context, item model.Item) (model.RevisionID, string, error) {
	rev, err := w.LatestRevision(ctx, item)
	if err != nil {
		return 0, "", err
	}
	text, err := w.RevisionText(ctx, item, rev)
	if err != nil {
		return 0, "", err
	}
	return rev, text, nil
}

// Creator returns the author of the oldest revision. Ties on timestamp go
// to the lowest revision id.
func (w *Wiki) Creator(ctx context.Context, item model.Item) (string, error) {
	var author string
	err := w.db.QueryRowContext(ctx, `
		SELECT author FROM revisions WHERE page_id = ? ORDER BY timestamp, rev_id LIMIT 1
	`, item.ID).Scan(&author)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("creator of %s: %w", item.FullName(), err)
	}
	return author, nil
}

// DeletePage removes the page, its history and its derived data.
func (w *Wiki) DeletePage(ctx context.Context, item model.Item) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"revisions", "category_links", "page_links", "page_props", "semantic_props", "search_index", "pages"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE page_id = ?`, item.ID); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, item.FullName(), err)
			}
		}
		return nil
	})
}

// Categories returns the categories a page is directly placed in.
func (w *Wiki) Categories(ctx context.Context, ns model.NamespaceID, name string) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT cl.category FROM category_links cl
		JOIN pages p ON p.page_id = cl.page_id
		WHERE p.namespace = ? AND p.title = ?
		ORDER BY cl.category
	`, int(ns), model.NormalizeTitle(name))
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return scanStrings(rows)
}

// Links returns the outgoing links of a page.
func (w *Wiki) Links(ctx context.Context, item model.Item) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT target FROM page_links WHERE page_id = ? ORDER BY target`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("links of %s: %w", item.FullName(), err)
	}
	return scanStrings(rows)
}

// SearchText returns the indexed search text of a page.
func (w *Wiki) SearchText(ctx context.Context, item model.Item) (string, error) {
	var text string
	err := w.db.QueryRowContext(ctx, `SELECT text FROM search_index WHERE page_id = ?`, item.ID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("search text of %s: %w", item.FullName(), err)
	}
	return text, nil
}

// HasApprovalMarker reports whether the page's indexed content carries the
// legacy approval marker.
func (w *Wiki) HasApprovalMarker(ctx context.Context, item model.Item) (bool, error) {
	var value string
	err := w.db.QueryRowContext(ctx, `
		SELECT value FROM page_props WHERE page_id = ? AND name = ?
	`, item.ID, MarkerProp).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("marker of %s: %w", item.FullName(), err)
	}
	return value == "y", nil
}

// PropertyActors returns the actors a semantic property of the page names.
// Values of the form "User:Name" resolve to Name; other values are taken as
// actor names verbatim.
func (w *Wiki) PropertyActors(ctx context.Context, property string, item model.Item) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT value FROM semantic_props WHERE page_id = ? AND property = ? ORDER BY rowid
	`, item.ID, model.NormalizeTitle(property))
	if err != nil {
		return nil, fmt.Errorf("property %s of %s: %w", property, item.FullName(), err)
	}
	values, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if ns, name := model.SplitTitle(v); ns == model.NSUser {
			v = name
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// Apply replaces the derived data of a page with out.
func (w *Wiki) Apply(ctx context.Context, item model.Item, out model.ParsedPage) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"category_links", "page_links", "semantic_props", "search_index"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE page_id = ?`, item.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_props WHERE page_id = ? AND name = ?`, item.ID, MarkerProp); err != nil {
			return fmt.Errorf("clear marker: %w", err)
		}

		for _, c := range out.Categories {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO category_links (page_id, category) VALUES (?, ?) ON CONFLICT DO NOTHING
			`, item.ID, c); err != nil {
				return fmt.Errorf("insert category: %w", err)
			}
		}
		for _, l := range out.Links {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO page_links (page_id, target) VALUES (?, ?) ON CONFLICT DO NOTHING
			`, item.ID, l); err != nil {
				return fmt.Errorf("insert link: %w", err)
			}
		}
		for _, p := range out.Properties {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO semantic_props (page_id, property, value) VALUES (?, ?, ?)
			`, item.ID, p.Name, p.Value); err != nil {
				return fmt.Errorf("insert property: %w", err)
			}
		}
		if out.ApprovalMarker {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO page_props (page_id, name, value) VALUES (?, ?, 'y')
			`, item.ID, MarkerProp); err != nil {
				return fmt.Errorf("insert marker: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_index (page_id, text) VALUES (?, ?)
		`, item.ID, out.SearchText); err != nil {
			return fmt.Errorf("insert search text: %w", err)
		}
		return nil
	})
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
