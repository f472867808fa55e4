// Package core orchestrates transfers between local file trees and a
// remote content-addressed store: deduplicated uploads with retries,
// archiving trees into manifests, and a bounded-concurrency fetch
// scheduler feeding a local cache.
package core
