// Package server hosts the Fiber HTTP service that fronts the local asset root.
// Every request passes through the request-id and CDN middlewares; asset
// requests are redirected to their uploaded CDN URL once one is known, HTML
// pages get their local asset references rewritten, and anything not yet
// uploaded is served straight from disk. Diagnostic endpoints live under /-/
// and are registered by the routes subpackage, so keep exports narrow and
// accept explicit dependencies.
package server
