// Package database provides the SQLite connection used to store device entries.
//
// It wraps database/sql with the mattn/go-sqlite3 driver and applies
// versioned migrations embedded in the binary by the migrations package.
//
// # Configuration
//
//	database:
//	  path: "./data/purifier.db"
//	  wal_mode: true
//	  busy_timeout: 5
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// DB is safe for concurrent use. The pool is limited to one connection
// because SQLite allows a single writer.
package database
