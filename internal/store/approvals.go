package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// ApprovedRevision returns the approved revision of a page.
func (d *DB) ApprovedRevision(ctx context.Context, itemID int64) (model.RevisionID, bool, error) {
	var rev int64
	err := d.db.QueryRowContext(ctx, `SELECT rev_id FROM approval_records WHERE item_id = ?`, itemID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read approval record: %w", err)
	}
	return model.RevisionID(rev), true, nil
}

// HasApprovalRecord reports whether a page has an approval record.
func (d *DB) HasApprovalRecord(ctx context.Context, itemID int64) (bool, error) {
	_, ok, err := d.ApprovedRevision(ctx, itemID)
	return ok, err
}

// SetApprovedRevision inserts or updates the approval record of a page.
func (d *DB) SetApprovedRevision(ctx context.Context, itemID int64, rev model.RevisionID) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO approval_records (item_id, rev_id)
		VALUES (?, ?)
		ON CONFLICT (item_id) DO UPDATE SET rev_id = excluded.rev_id
	`, itemID, int64(rev))
	if err != nil {
		return fmt.Errorf("upsert approval record: %w", err)
	}
	return nil
}

// DeleteApproval removes the approval record of a page. It reports whether
// a record existed.
func (d *DB) DeleteApproval(ctx context.Context, itemID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM approval_records WHERE item_id = ?`, itemID)
	if err != nil {
		return false, fmt.Errorf("delete approval record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete approval record: %w", err)
	}
	return n > 0, nil
}

// ApprovalRecords returns every page approval record ordered by item id.
func (d *DB) ApprovalRecords(ctx context.Context) ([]model.ApprovalRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT item_id, rev_id FROM approval_records ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ApprovalRecord
	for rows.Next() {
		var r model.ApprovalRecord
		if err := rows.Scan(&r.ItemID, &r.RevisionID); err != nil {
			return nil, fmt.Errorf("scan approval record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApprovedFile returns the approved version of a file.
func (d *DB) ApprovedFile(ctx context.Context, fileKey string) (model.FileVersion, bool, error) {
	var v model.FileVersion
	err := d.db.QueryRowContext(ctx, `
		SELECT approved_timestamp, approved_sha1 FROM file_approval_records WHERE file_key = ?
	`, fileKey).Scan(&v.Timestamp, &v.SHA1)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileVersion{}, false, nil
	}
	if err != nil {
		return model.FileVersion{}, false, fmt.Errorf("read file approval record: %w", err)
	}
	return v, true, nil
}

// HasFileApprovalRecord reports whether a file has an approval record.
func (d *DB) HasFileApprovalRecord(ctx context.Context, fileKey string) (bool, error) {
	_, ok, err := d.ApprovedFile(ctx, fileKey)
	return ok, err
}

// SetApprovedFile inserts or updates the approval record of a file.
func (d *DB) SetApprovedFile(ctx context.Context, fileKey string, v model.FileVersion) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO file_approval_records (file_key, approved_timestamp, approved_sha1)
		VALUES (?, ?, ?)
		ON CONFLICT (file_key) DO UPDATE SET
			approved_timestamp = excluded.approved_timestamp,
			approved_sha1 = excluded.approved_sha1
	`, fileKey, v.Timestamp, v.SHA1)
	if err != nil {
		return fmt.Errorf("upsert file approval record: %w", err)
	}
	return nil
}

// DeleteFileApproval removes the approval record of a file. It reports
// whether a record existed.
func (d *DB) DeleteFileApproval(ctx context.Context, fileKey string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM file_approval_records WHERE file_key = ?`, fileKey)
	if err != nil {
		return false, fmt.Errorf("delete file approval record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete file approval record: %w", err)
	}
	return n > 0, nil
}

// FileApprovalRecords returns every file approval record ordered by key.
func (d *DB) FileApprovalRecords(ctx context.Context) ([]model.FileApprovalRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT file_key, approved_timestamp, approved_sha1 FROM file_approval_records ORDER BY file_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list file approval records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.FileApprovalRecord
	for rows.Next() {
		var r model.FileApprovalRecord
		if err := rows.Scan(&r.FileKey, &r.Version.Timestamp, &r.Version.SHA1); err != nil {
			return nil, fmt.Errorf("scan file approval record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
