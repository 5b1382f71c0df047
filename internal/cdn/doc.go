// Package cdn lazily mirrors local static assets into a remote CDN container
// and hands out cache-busted URLs for them.
//
// A CDN instance owns three tables: the upload cache (logical filename →
// Absent/Pending/Resolved), the init gate buffering requests issued before
// the remote container exists, and the set of local paths under watch.
// Callers only ever see CDN.CDN: the first request for an asset returns the
// original reference and starts an upload in the background; once the
// upload resolves, later requests get the remote URL. Destination names
// embed the file's modification time, so touching a file changes its URL and
// the watch re-uploads it.
package cdn
