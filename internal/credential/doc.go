// Package credential holds the set of mobile credentials allowed to open
// the door.
//
// A Credential pairs a display alias with the Bluetooth MAC of the user's
// phone and a 4-digit passcode. The Directory keeps every credential in
// memory behind a mutex and persists changes through a Repository
// (SQLite in production).
//
// The access orchestrator only reads the Directory: it asks for the MACs
// it may pair with (Allowed) and resolves a paired peer back to a
// credential (LookupMAC). Lookups return copies, so a credential removed
// mid-session cannot leave the orchestrator with a dangling reference.
//
// Usage:
//
//	dir := credential.NewDirectory(credential.NewSQLiteRepository(db.DB))
//	if err := dir.Load(ctx); err != nil { ... }
//	c, ok := dir.LookupMAC("aa:bb:cc:dd:ee:ff")
package credential
