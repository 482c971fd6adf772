// Package database provides the SQLite store behind the bridge event log.
//
// It owns the connection (WAL mode, busy timeout, 0600 file permissions)
// and a small forward-only migration runner. Migrations are read from any
// fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
