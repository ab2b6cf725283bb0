// Package device enforces device and IP bans.
//
// A device is identified by a coarse SHA-256 fingerprint over client headers;
// it is not forgery-proof and only raises the cost of re-registering after a ban.
// Bans match on fingerprint or IP and block both login and registration unless
// the account being accessed is on the ban exclusion allow-list.
//
//	guard := device.NewGuard(bans, exclusions)
//	ban, err := guard.Check(ctx, device.RequestFingerprint(r), device.ClientIP(r), &candidateID)
//	if ban != nil {
//		device.SetBanMarker(w, *ban, fingerprint, opts, time.Now())
//	}
package device
