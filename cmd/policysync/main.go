// Policysync distributes authorization policy and data from a git
// repository to policy agents.
//
// The server side turns commits into policy bundles and announces changed
// directories on pub/sub topics. The client side subscribes to data topics
// and keeps a local policy store up to date.
//
// Usage:
//
//	# Print the bundle of the tracked branch head
//	policysync bundle --config policysync.yaml
//
//	# Print the changes between two commits
//	policysync diff HEAD~1 HEAD --output json
//
//	# Publish policy changes as commits land
//	policysync watch
//
//	# Run the data client
//	policysync client
//
//	# Show version information
//	policysync version
package main

func main() {
	Execute()
}
