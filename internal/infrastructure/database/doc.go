// Package database opens the agent's SQLite file and applies embedded
// schema migrations.
//
// The file holds persisted broker credentials and is created with mode
// 0600. A single connection is used; WAL mode and the busy timeout come
// from the database section of the configuration.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	_, err = db.Migrate(ctx, migrations.FS)
package database
