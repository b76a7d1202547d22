// Package pubsub connects policysync to a topic-based pub/sub server.
//
// Servers publish policy and data update notifications to topics; agents
// subscribe to the topics they serve. Two transports are provided: Broker,
// an in-process hub used by tests and single-process setups, and
// SocketIOClient, which talks socket.io to a remote server.
package pubsub
