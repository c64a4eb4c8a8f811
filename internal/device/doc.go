// Package device is the persisted catalogue of configured purifiers.
//
// Each Device records how to reach a purifier (host, model, MAC) and the
// last status snapshot seen from it. The snapshot is stored as a CBOR
// blob so a restart can seed a coordinator before the device answers.
//
// # Components
//
//   - Repository / SQLiteRepository: CRUD against the entries table
//   - Registry: thread-safe cache in front of a Repository
//   - EncodeSnapshot / DecodeSnapshot: deterministic CBOR snapshot codec
//   - ValidateDevice: name, host, MAC and snapshot size checks
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// From a status listener:
//	_ = registry.SaveStatus(ctx, entryID, snapshot)
//
// # Thread Safety
//
// Registry methods are safe for concurrent use. Returned devices are deep
// copies.
package device
