// Package models defines the domain types shared across the auth, playback,
// and service layers.
//
// Everything here is a plain data carrier:
//
//   - [UserProfile] : the authenticated Spotify account
//   - [Track], [Playlist] : library metadata
//   - [Device] : a Spotify Connect playback endpoint
//   - [PlayerState] : the playback snapshot pushed by the player SDK,
//     including the [Disallows] capability map that gates commands
//
// Persistence of these types lives in the repositories package; network
// retrieval lives in the services package.
package models
