package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"   // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3"  // github.com/mattn/go-sqlite3, cgo
	DriverPostgres = "postgres" // github.com/lib/pq
)

// dialect captures what differs between the supported drivers.
type dialect struct {
	driver string
	schema string
	// dsn turns the configured DSN into the string handed to sql.Open.
	dsn func(string) string
	// positional placeholders ($1, $2, ...) instead of ?
	numbered bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", DriverSQLite:
		return dialect{
			driver: DriverSQLite,
			schema: sqliteSchema,
			dsn: func(path string) string {
				return path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
			},
		}, nil
	case DriverSQLite3:
		return dialect{
			driver: DriverSQLite3,
			schema: sqliteSchema,
			dsn: func(path string) string {
				return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
			},
		}, nil
	case DriverPostgres:
		return dialect{
			driver:   DriverPostgres,
			schema:   postgresSchema,
			dsn:      func(dsn string) string { return dsn },
			numbered: true,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders for drivers that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure from any of the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		code := moderncErr.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique || cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS albums (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    user_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS photos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filename TEXT NOT NULL UNIQUE,
    filepath TEXT,
    mime_type TEXT,
    size INTEGER,
    checksum TEXT NOT NULL DEFAULT '',
    user_id INTEGER NOT NULL,
    album_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS photo_permissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    photo_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    permission_type TEXT NOT NULL DEFAULT 'view',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (photo_id) REFERENCES photos(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE (photo_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_albums_user ON albums(user_id);
CREATE INDEX IF NOT EXISTS idx_photos_user ON photos(user_id);
CREATE INDEX IF NOT EXISTS idx_photos_album ON photos(album_id);
CREATE INDEX IF NOT EXISTS idx_photo_permissions_user ON photo_permissions(user_id);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS albums (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS photos (
    id BIGSERIAL PRIMARY KEY,
    filename TEXT NOT NULL UNIQUE,
    filepath TEXT,
    mime_type TEXT,
    size BIGINT,
    checksum TEXT NOT NULL DEFAULT '',
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    album_id BIGINT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS photo_permissions (
    id BIGSERIAL PRIMARY KEY,
    photo_id BIGINT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    permission_type TEXT NOT NULL DEFAULT 'view',
    created_at BIGINT NOT NULL,
    UNIQUE (photo_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_albums_user ON albums(user_id);
CREATE INDEX IF NOT EXISTS idx_photos_user ON photos(user_id);
CREATE INDEX IF NOT EXISTS idx_photos_album ON photos(album_id);
CREATE INDEX IF NOT EXISTS idx_photo_permissions_user ON photo_permissions(user_id);`
