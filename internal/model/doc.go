// Package model defines domain data structures used across the bot: sessions
// with their tagged pipeline state, quality choices, media metadata, artifacts,
// credential references, inbound events, download tasks and error kinds.
package model
