// Package types defines the domain model shared across worktrack: the
// metadata entities of a remote work-tracking service (workspaces, item
// types, fields, options, roles, users), the wire shapes used for item
// writes, and the error taxonomy surfaced to callers.
//
// The remote service addresses everything by opaque keys that vary per
// tenant. The types here pair each entity's human-readable name with its
// key; resolution between the two is the job of internal/metadata.
package types
