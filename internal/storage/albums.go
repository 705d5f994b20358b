package storage

import (
	"context"
	"fmt"
)

// CreateAlbum inserts a new album and sets a.ID.
func (d *DB) CreateAlbum(ctx context.Context, a *Album) error {
	err := d.queryRow(ctx,
		`INSERT INTO albums (name, description, user_id, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		a.Name, a.Description, a.UserID, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create album: %w", err)
	}
	return nil
}

// GetAlbum retrieves an album by ID.
func (d *DB) GetAlbum(ctx context.Context, id int64) (*Album, error) {
	a := &Album{}
	err := d.queryRow(ctx,
		`SELECT id, name, description, user_id, created_at FROM albums WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Description, &a.UserID, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get album")
	}
	return a, nil
}

// ListAlbumsByUser returns the user's albums newest first, with photo counts.
func (d *DB) ListAlbumsByUser(ctx context.Context, userID int64) ([]Album, error) {
	rows, err := d.query(ctx,
		`SELECT a.id, a.name, a.description, a.user_id, a.created_at, COUNT(p.id)
		 FROM albums a
		 LEFT JOIN photos p ON p.album_id = a.id
		 WHERE a.user_id = ?
		 GROUP BY a.id, a.name, a.description, a.user_id, a.created_at
		 ORDER BY a.created_at DESC, a.id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.UserID, &a.CreatedAt, &a.PhotoCount); err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// DeleteAlbum removes an album. Its photos are deleted by ON DELETE CASCADE.
func (d *DB) DeleteAlbum(ctx context.Context, id int64) error {
	res, err := d.exec(ctx, `DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete album: %w", err)
	}
	return expectOne(res, "delete album")
}
