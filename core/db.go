package core

import (
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/putto11262002/coursechat/migrations"
)

type SQLiteDBOption struct {
	// mode can be ro | rw | rwc | memory
	Mode string
	// cache can be shared | private
	Cache string
	// JournalMode be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
	// MaxOpenConns limits the pool. In-memory shared-cache databases need 1.
	MaxOpenConns int
}

func (config *SQLiteDBOption) DSN(sb *strings.Builder) {
	if config == nil {
		return
	}

	sep := "?"
	param := func(k, v string) {
		if v == "" {
			return
		}
		sb.WriteString(sep)
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(v)
		sep = "&"
	}

	param("mode", config.Mode)
	param("cache", config.Cache)
	param("_journal_mode", config.JournalMode)
}

type SQLiteDB struct {
	*sql.DB
	config     *SQLiteDBOption
	file       string
	migrations fs.FS
}

func NewSQLiteDB(file string, config *SQLiteDBOption) (*SQLiteDB, error) {
	db := &SQLiteDB{config: config, file: file, migrations: migrations.FS}

	var dsn strings.Builder
	dsn.WriteString("file:")
	dsn.WriteString(db.file)
	config.DSN(&dsn)

	d, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if config != nil && config.MaxOpenConns > 0 {
		d.SetMaxOpenConns(config.MaxOpenConns)
	}

	db.DB = d
	return db, nil
}

// NewMemorySQLiteDB opens a private in-memory database with the migrations applied.
func NewMemorySQLiteDB() (*SQLiteDB, error) {
	db, err := NewSQLiteDB(uuid.New().String(), &SQLiteDBOption{
		Mode:         "memory",
		Cache:        "shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded migrations.
func (db *SQLiteDB) Migrate() error {
	goose.SetBaseFS(db.migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	if err := goose.Up(db.DB, "."); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}
	return nil
}
