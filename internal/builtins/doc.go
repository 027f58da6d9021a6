// Package builtins provides the command plugins that ship with the bot.
//
// # Plugins
//
//   - help: list commands or show one command's syntax and description
//   - alert_word: bind, unbind and list alert phrases (admin)
//   - msg: store, send, remove and list canned messages (admin)
//   - subscribe: invite the sender into one or more rooms (admin)
//   - sql: run a read-only query against the bot database (admin)
//
// All of them are registered by RegisterAll before the registry is sealed.
// Admin plugins declare plugins.PrivilegeAdmin and rely on the router to
// reject other senders before Execute runs.
package builtins
