// Package tournament defines the domain model shared by the local cache,
// the remote gateway and the reconciliation engine.
//
// A Tournament carries a tagged identity (see ID): it is either a Draft that
// only exists locally, keyed by a generated local key, or Saved under the
// identifier assigned by the remote API. The zero ID means "never persisted".
//
// Status is derived from wall-clock time by DeriveStatus, but the derived
// value is also stored so that list views can render without re-deriving.
//
// Coordinates (Latitude/Longitude) are locally authoritative. The remote API
// may or may not echo them back, and a merge never replaces coordinates the
// local copy already has.
package tournament
