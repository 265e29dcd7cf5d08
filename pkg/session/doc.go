// Package session keeps the short-lived credentials of one signed-in user,
// refreshes them when they expire, ends the session after inactivity, and
// answers whether the user may do something.
//
// A Controller ties the pieces together:
//
//	store := session.NewCredentialStore(kv, logger)
//	ctrl := session.NewController(store, authClient, httpClient, session.Config{
//		IdleTime:    15 * time.Minute,
//		WarningTime: time.Minute,
//	}, session.WithNotifier(notifier))
//
//	if _, err := ctrl.Login(ctx, username, password); err != nil { ... }
//	if ctrl.Can(session.ByCode("results:approve")) { ... }
//	resp, err := ctrl.Request(ctx, req, session.ByCode("results:read"))
//
// Requests that come back unauthorized trigger one shared credential refresh
// and are replayed once. A failed refresh or an idle timeout ends the session.
package session
