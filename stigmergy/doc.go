// Package stigmergy broadcasts aggregated intelligence to the swarm and
// folds incoming announcements into the local cache, so agents coordinate
// indirectly through shared findings instead of direct peer messaging.
//
// Topics are deterministic: findings:<8-hex sha256 of the target>:<type>.
// Every received announcement is appended to the audit stream, whether or
// not the local agent is interested in its finding type; only interesting
// announcements reach the cache, and only when fresher than what is there.
package stigmergy
