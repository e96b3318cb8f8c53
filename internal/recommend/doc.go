// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package recommend holds the ranking contract shared by the recommendation
// backend and this client.
//
// # Ordering
//
// Items are ordered by similarity score, then rating, then review count, all
// descending. Ties on all three keys keep their input order, so a ranking is
// deterministic for a given catalog.
//
// # Top Tier
//
// The first models.TopTierSize items of the full ranking carry IsTopTier.
// Pagination never changes which items are top tier: page 2 of a ranking
// never contains a top-tier item when the page size is at least the tier size.
//
// # Verification
//
// VerifyPage checks a page received from the backend against the contract and
// reports every violation it finds. The client logs violations and keeps the
// page; it does not re-rank.
//
// # Scoring
//
// Engine is a small content scorer over a restaurant catalog. It is used by
// the in-process test backend and the demo catalog, not by the client at
// runtime.
package recommend
