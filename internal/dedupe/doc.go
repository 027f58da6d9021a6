// Package dedupe drops chat events the homeserver delivers more than once.
//
// Sync-based transports may replay events after a reconnect or a restart
// from an old sync token. The bot consults a Filter with each event ID
// before classifying it, so an alert reaction or command runs at most once
// per event within the filter's TTL.
//
//	f := dedupe.New(10*time.Minute, 4096)
//	if f.Seen(ev.ID) {
//		return // duplicate
//	}
package dedupe
