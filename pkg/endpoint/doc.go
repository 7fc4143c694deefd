// Package endpoint manages the lifecycle of a single DevPort endpoint:
// registering an identity with an authority, binding the class object,
// exposing the endpoint for discovery, and granting exclusive
// per-session access to its parameter record.
//
// # Lifecycle
//
// An endpoint walks a strict lifecycle, driven by a Manager:
//
//	Unregistered --Register--> Registered --BindClass--> ClassBound --Expose--> Exposed
//
// Each step acquires one resource from the registry authority. When a
// step fails, the resources acquired by the earlier steps are released
// in reverse order and the endpoint lands in StateFailed; the reported
// error is always the failing step's, never a rollback error. Teardown
// releases the three resources in the same reverse order and returns
// the endpoint to StateUnregistered.
//
// # Sessions
//
// An exposed endpoint is claimed by at most one session at a time.
// Manager.Open hands out the claim; a second caller observes
// gate.ErrBusy and retries on its own schedule. The Session reads and
// writes whole parameter records and releases the claim on Close.
//
// Example usage:
//
//	mgr, err := endpoint.New(registry.NewMemoryAuthority(), endpoint.DefaultConfig())
//	if err := mgr.Start(ctx); err != nil {
//		return err
//	}
//	defer mgr.Teardown()
//
//	sess, err := mgr.Open()
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
//
//	rec := params.Record{Command: 7, TargetAddr: 0x1000, Length: 64}
//	_, err = sess.Write(params.Encode(rec))
package endpoint
