// Package secrets resolves ${secret:name} references in fetch
// configuration.
//
// Data-source entries and callbacks carry request headers such as
// Authorization. Instead of embedding tokens in the data-source
// configuration served to every client, an entry can reference a secret:
//
//	{"url": "https://api.internal/users",
//	 "config": {"headers": {"Authorization": "Bearer ${secret:users-api-token}"}}}
//
// The Manager looks the name up in its providers in order and caches the
// value for the configured TTL:
//
//   - FileProvider reads <directory>/<name>, the layout of mounted
//     Kubernetes and Docker secrets. Files must not be readable by group
//     or others.
//   - EnvProvider reads <prefix><NAME> with dashes turned into
//     underscores, e.g. POLICYSYNC_SECRET_USERS_API_TOKEN.
//
// Secret values are never logged; names are shortened in debug logs.
package secrets
