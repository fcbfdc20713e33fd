package wiki

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// Upload is one stored version of a file.
type Upload struct {
	model.FileVersion
	Size     int64  `json:"size"`
	Uploader string `json:"uploader"`
}

// UploadFile stores content as a new version of the file name, creating
// its description page on first upload. Timestamps of one file are kept
// strictly increasing.
func (w *Wiki) UploadFile(ctx context.Context, name, uploader string, content []byte) (model.Item, model.FileVersion, error) {
	ns, title := model.SplitTitle(name)
	if ns != model.NSFile {
		ns, title = model.NSFile, model.NormalizeTitle(name)
	}
	if title == "" {
		return model.Item{}, model.FileVersion{}, fmt.Errorf("%w: %q", ErrInvalidTitle, name)
	}
	item := model.Item{Namespace: ns, Name: title, Exists: true}

	sum := sha1.Sum(content)
	v := model.FileVersion{SHA1: hex.EncodeToString(sum[:])}

	err := w.inTx(ctx, func(tx *sql.Tx) error {
		var latest sql.NullString
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(timestamp) FROM files WHERE name = ?
		`, item.DBKey()).Scan(&latest); err != nil {
			return fmt.Errorf("latest upload: %w", err)
		}
		// timestamps have second precision
		now := w.now().UTC().Truncate(time.Second)
		if latest.Valid {
			if prev, err := time.Parse(TimestampFormat, latest.String); err == nil && !now.After(prev) {
				now = prev.Add(time.Second)
			}
		}
		v.Timestamp = now.Format(TimestampFormat)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (name, timestamp, sha1, size, uploader) VALUES (?, ?, ?, ?, ?)
		`, item.DBKey(), v.Timestamp, v.SHA1, len(content), uploader); err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}

		var exists int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM pages WHERE namespace = ? AND title = ?
		`, int(ns), title).Scan(&exists); err != nil {
			return fmt.Errorf("lookup description page: %w", err)
		}
		if exists > 0 {
			return tx.QueryRowContext(ctx, `
				SELECT page_id FROM pages WHERE namespace = ? AND title = ?
			`, int(ns), title).Scan(&item.ID)
		}
		var err error
		item.ID, _, err = saveRevisionTx(ctx, tx, item, model.Revision{Author: uploader, Timestamp: v.Timestamp}, "")
		return err
	})
	if err != nil {
		return model.Item{}, model.FileVersion{}, fmt.Errorf("upload %s: %w", item.FullName(), err)
	}
	return item, v, nil
}

// FileVersions returns the uploads of a file, newest first.
func (w *Wiki) FileVersions(ctx context.Context, item model.Item) ([]Upload, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT timestamp, sha1, size, uploader FROM files WHERE name = ? ORDER BY timestamp DESC
	`, item.DBKey())
	if err != nil {
		return nil, fmt.Errorf("uploads of %s: %w", item.FullName(), err)
	}
	defer func() { _ = rows.Close() }()

	var out []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.Timestamp, &u.SHA1, &u.Size, &u.Uploader); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LatestFileVersion returns the newest upload of a file.
func (w *Wiki) LatestFileVersion(ctx context.Context, item model.Item) (model.FileVersion, error) {
	var v model.FileVersion
	err := w.db.QueryRowContext(ctx, `
		SELECT timestamp, sha1 FROM files WHERE name = ? ORDER BY timestamp DESC LIMIT 1
	`, item.DBKey()).Scan(&v.Timestamp, &v.SHA1)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileVersion{}, fmt.Errorf("uploads of %s: %w", item.FullName(), model.ErrNotFound)
	}
	if err != nil {
		return model.FileVersion{}, fmt.Errorf("latest upload of %s: %w", item.FullName(), err)
	}
	return v, nil
}

// HasFileVersion reports whether v is a stored upload of the file.
func (w *Wiki) HasFileVersion(ctx context.Context, item model.Item, v model.FileVersion) (bool, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM files WHERE name = ? AND timestamp = ? AND sha1 = ?
	`, item.DBKey(), v.Timestamp, v.SHA1).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup upload of %s: %w", item.FullName(), err)
	}
	return n > 0, nil
}

// FindFileVersion returns the upload of a file whose hash starts with
// prefix, or whose timestamp equals it.
func (w *Wiki) FindFileVersion(ctx context.Context, item model.Item, prefix string) (model.FileVersion, error) {
	uploads, err := w.FileVersions(ctx, item)
	if err != nil {
		return model.FileVersion{}, err
	}
	for _, u := range uploads {
		if u.Timestamp == prefix || (len(prefix) >= 4 && len(u.SHA1) >= len(prefix) && u.SHA1[:len(prefix)] == prefix) {
			return u.FileVersion, nil
		}
	}
	return model.FileVersion{}, fmt.Errorf("upload %s of %s: %w", prefix, item.FullName(), model.ErrNotFound)
}

// DeleteFile removes every upload of the file and its description page.
func (w *Wiki) DeleteFile(ctx context.Context, item model.Item) error {
	if _, err := w.db.ExecContext(ctx, `DELETE FROM files WHERE name = ?`, item.DBKey()); err != nil {
		return fmt.Errorf("delete uploads of %s: %w", item.FullName(), err)
	}
	if item.ID != 0 {
		return w.DeletePage(ctx, item)
	}
	return nil
}

// Files returns the description pages of every file with uploads.
func (w *Wiki) Files(ctx context.Context) ([]model.Item, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT p.page_id, p.title FROM pages p
		WHERE p.namespace = ? AND EXISTS (
			SELECT 1 FROM files f WHERE f.name = REPLACE(p.title, ' ', '_')
		)
		ORDER BY p.title
	`, int(model.NSFile))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Item
	for rows.Next() {
		item := model.Item{Namespace: model.NSFile, Exists: true}
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
