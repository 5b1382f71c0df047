// Package remote contains the object-store adapters the CDN core uploads
// into. A Store creates or locates a named container; a Container exposes
// its public CDN base URI and accepts uploads of local files under a
// destination name. Two backends ship with the service: swift talks to
// Rackspace Cloud Files / OpenStack Swift over HTTP, disk writes containers
// under a local directory that the HTTP server publishes as an origin.
// WithGzip decorates either one so bytes match a gzip Content-Encoding.
package remote
