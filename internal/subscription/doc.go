// Package subscription keeps logical subscriptions alive across WebSocket
// disconnects.
//
// A Manager is bound to one endpoint address. Callers register subscriptions
// by their subscribe payload; the manager borrows a pooled connection, sends
// every registered subscribe payload in registration order, and repeats the
// cycle whenever the connection drops. Subscriptions survive in the registry
// rather than on the wire, so nothing is lost to a reconnect beyond frames
// that were already in flight.
//
// A manager with zero subscriptions for longer than its idle tolerance winds
// itself down and releases its pooled connection; a later Subscribe starts it
// again.
package subscription
