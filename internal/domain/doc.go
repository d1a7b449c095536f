// Package domain models the data that flows through the bovine fetch-fuse-cache
// pipeline: per-source fetch results, the normalized payload of each feed, the
// derived herd estimates and conflict zones, cache entries and change events.
//
// # Source Results
//
// Every collaborator fetch produces exactly one [SourceResult] per cycle. The
// status field tells consumers how fresh the payload is:
//
//	connected  fetched successfully this cycle
//	cached     this cycle failed; payload and fetched_at are the last good result
//	limited    the provider rate-limited us; payload is the last good result
//	failed     this cycle failed and no prior result exists; payload is null
//
// A failed result never carries a partial payload. Cached and limited results
// keep the original fetched_at so staleness is always measured from the data,
// not from the attempt.
//
// # Payloads
//
// [Payload] is a tagged variant: Kind names the feed category and exactly the
// matching member is set. [Payload.Validate] rejects anything else, so a
// malformed feed is quarantined at the fetch boundary instead of leaking into
// fusion.
//
// # Coordinates
//
// All positions are WGS-84 decimal degrees with latitude first. Distances are
// great-circle kilometres ([HaversineKm]); bearings are degrees clockwise from
// true north and are reported to consumers as 8-point compass labels
// (N, NE, E, SE, S, SW, W, NW).
//
// # Risk Levels
//
// A zone's level is a step function of its 0-100 score:
//
//	score >= 80  Critical
//	score >= 60  High
//	score >= 35  Medium
//	otherwise    Low
//
// # Identifiers
//
// Cache keys are natural keys (herd id, grid cell, source id). Where a feed
// has no stable identifier, [StableID] derives one from a SHA-256 of the
// identifying fields so re-fetching the same record upserts rather than
// duplicates.
package domain
