package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// CreatePhoto inserts a new photo record and sets p.ID.
func (d *DB) CreatePhoto(ctx context.Context, p *Photo) error {
	err := d.queryRow(ctx,
		`INSERT INTO photos (filename, filepath, mime_type, size, checksum, user_id, album_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.Filename, nullString(p.FilePath), nullString(p.MimeType), nullInt64(p.Size),
		p.Checksum, p.UserID, p.AlbumID, p.CreatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("create photo: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

// photoSelect joins the album name and owner username onto every photo row.
const photoSelect = `SELECT p.id, p.filename, p.filepath, p.mime_type, p.size, p.checksum,
       p.user_id, p.album_id, p.created_at, a.name, u.username
FROM photos p
JOIN albums a ON a.id = p.album_id
JOIN users u ON u.id = p.user_id`

const newestFirst = ` ORDER BY p.created_at DESC, p.id DESC`

type scanner interface {
	Scan(dest ...any) error
}

func scanPhoto(s scanner, extra ...any) (Photo, error) {
	var p Photo
	var filePath, mimeType sql.NullString
	var size sql.NullInt64
	dest := []any{&p.ID, &p.Filename, &filePath, &mimeType, &size, &p.Checksum,
		&p.UserID, &p.AlbumID, &p.CreatedAt, &p.AlbumName, &p.OwnerUsername}
	dest = append(dest, extra...)
	if err := s.Scan(dest...); err != nil {
		return Photo{}, err
	}
	p.FilePath = filePath.String
	p.MimeType = mimeType.String
	p.Size = size.Int64
	return p, nil
}

func (d *DB) listPhotos(ctx context.Context, op, query string, args ...any) ([]Photo, error) {
	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// GetPhoto retrieves a photo by ID.
func (d *DB) GetPhoto(ctx context.Context, id int64) (*Photo, error) {
	p, err := scanPhoto(d.queryRow(ctx, photoSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "get photo")
	}
	return &p, nil
}

// GetPhotoByFilename retrieves a photo by its stored filename.
func (d *DB) GetPhotoByFilename(ctx context.Context, filename string) (*Photo, error) {
	p, err := scanPhoto(d.queryRow(ctx, photoSelect+` WHERE p.filename = ?`, filename))
	if err != nil {
		return nil, notFound(err, "get photo by filename")
	}
	return &p, nil
}

// PhotoFilenameExists reports whether a photo row references filename.
func (d *DB) PhotoFilenameExists(ctx context.Context, filename string) (bool, error) {
	var n int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM photos WHERE filename = ?`, filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("photo filename exists: %w", err)
	}
	return n > 0, nil
}

// ListPhotosByAlbum returns the photos of an album, newest first.
func (d *DB) ListPhotosByAlbum(ctx context.Context, albumID int64) ([]Photo, error) {
	return d.listPhotos(ctx, "list photos by album", photoSelect+` WHERE p.album_id = ?`+newestFirst, albumID)
}

// ListPhotosByUser returns the photos a user owns, newest first.
func (d *DB) ListPhotosByUser(ctx context.Context, userID int64) ([]Photo, error) {
	return d.listPhotos(ctx, "list photos by user", photoSelect+` WHERE p.user_id = ?`+newestFirst, userID)
}

// ListVisiblePhotos returns every photo the user owns plus every photo
// granted to the user, newest first. Granted photos carry their permission type.
func (d *DB) ListVisiblePhotos(ctx context.Context, userID int64) ([]Photo, error) {
	return d.listGranted(ctx, "list visible photos",
		`WHERE p.user_id = ? OR g.id IS NOT NULL`, userID, userID)
}

// ListPhotosOfOwnerVisibleTo returns the photos owned by ownerID that viewerID
// may see: all of them when the two are the same user, the granted ones otherwise.
func (d *DB) ListPhotosOfOwnerVisibleTo(ctx context.Context, ownerID, viewerID int64) ([]Photo, error) {
	return d.listGranted(ctx, "list photos of owner",
		`WHERE p.user_id = ? AND (p.user_id = ? OR g.id IS NOT NULL)`, viewerID, ownerID, viewerID)
}

// listGranted runs photoSelect with the viewer's grant left-joined. The first
// argument is always the viewer ID used by the join.
func (d *DB) listGranted(ctx context.Context, op, where string, args ...any) ([]Photo, error) {
	query := `SELECT p.id, p.filename, p.filepath, p.mime_type, p.size, p.checksum,
       p.user_id, p.album_id, p.created_at, a.name, u.username, COALESCE(g.permission_type, '')
FROM photos p
JOIN albums a ON a.id = p.album_id
JOIN users u ON u.id = p.user_id
LEFT JOIN photo_permissions g ON g.photo_id = p.id AND g.user_id = ?
` + where + newestFirst

	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var perm string
		p, err := scanPhoto(rows, &perm)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		p.PermissionType = perm
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// PhotoFilenamesByUser returns the stored filenames of every photo a user owns.
func (d *DB) PhotoFilenamesByUser(ctx context.Context, userID int64) ([]string, error) {
	return d.filenames(ctx, "photo filenames by user", `SELECT filename FROM photos WHERE user_id = ?`, userID)
}

// PhotoFilenamesByAlbum returns the stored filenames of every photo in an album.
func (d *DB) PhotoFilenamesByAlbum(ctx context.Context, albumID int64) ([]string, error) {
	return d.filenames(ctx, "photo filenames by album", `SELECT filename FROM photos WHERE album_id = ?`, albumID)
}

func (d *DB) filenames(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeletePhoto removes a photo by ID. Its grants go with it.
func (d *DB) DeletePhoto(ctx context.Context, id int64) error {
	res, err := d.exec(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return expectOne(res, "delete photo")
}
