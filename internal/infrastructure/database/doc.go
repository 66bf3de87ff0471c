// Package database provides the access node's SQLite store.
//
// The store holds the credential directory, the persisted detection
// thresholds and the operator journal. The audit chain is NOT kept here:
// it lives in its own append-only text file so it can be validated and
// inspected without a database.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600 because it stores passcodes
//
// Usage:
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
// Migrations are embedded by the migrations package and named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql. They are
// applied oldest first, each in its own transaction, and tracked in the
// schema_migrations table.
package database
