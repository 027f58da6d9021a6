// Package matrix connects the bot to a Matrix homeserver.
//
// Client wraps a mautrix client. Run drives the sync loop and converts
// m.room.message, m.reaction and m.room.member events into chat.Event values
// delivered through Next. Outgoing text is treated as Markdown and sent
// with an HTML rendering. Rooms with exactly two joined members are
// reported as private conversations.
//
// Encryption is opt-in through EnableEncryption, which keeps an olm store
// next to the bot database.
package matrix
