package storage

import (
	"context"
	"fmt"
)

// UpsertGrant creates the (photo, user) grant or replaces the permission type
// and timestamp of the existing one. g.ID is set to the stored row's ID.
func (d *DB) UpsertGrant(ctx context.Context, g *Grant) error {
	err := d.queryRow(ctx,
		`INSERT INTO photo_permissions (photo_id, user_id, permission_type, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (photo_id, user_id) DO UPDATE
		 SET permission_type = excluded.permission_type, created_at = excluded.created_at
		 RETURNING id`,
		g.PhotoID, g.UserID, g.PermissionType, g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

// GetGrant retrieves the grant for a (photo, user) pair.
func (d *DB) GetGrant(ctx context.Context, photoID, userID int64) (*Grant, error) {
	g := &Grant{}
	err := d.queryRow(ctx,
		`SELECT id, photo_id, user_id, permission_type, created_at
		 FROM photo_permissions WHERE photo_id = ? AND user_id = ?`, photoID, userID,
	).Scan(&g.ID, &g.PhotoID, &g.UserID, &g.PermissionType, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get grant")
	}
	return g, nil
}

// ListGrantsForPhoto returns the grants on a photo with grantee usernames.
func (d *DB) ListGrantsForPhoto(ctx context.Context, photoID int64) ([]Grant, error) {
	rows, err := d.query(ctx,
		`SELECT g.id, g.photo_id, g.user_id, u.username, g.permission_type, g.created_at
		 FROM photo_permissions g
		 JOIN users u ON u.id = g.user_id
		 WHERE g.photo_id = ?
		 ORDER BY u.username`, photoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants for photo: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.PhotoID, &g.UserID, &g.Username, &g.PermissionType, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// DeleteGrant removes the grant for a (photo, user) pair.
func (d *DB) DeleteGrant(ctx context.Context, photoID, userID int64) error {
	res, err := d.exec(ctx,
		`DELETE FROM photo_permissions WHERE photo_id = ? AND user_id = ?`, photoID, userID)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return expectOne(res, "delete grant")
}
