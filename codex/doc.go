// Package codex drives complete turns against the codex app-server over its
// newline-delimited JSON protocol on stdio.
//
// A turn is one instruction-in/reply-out exchange. For each turn the Runner:
//   - spawns a fresh app-server process
//   - performs the initialize/initialized handshake
//   - starts a new thread or resumes one by id
//   - submits the instruction with turn/start
//   - classifies every inbound message, answering approval requests inline,
//     forwarding progress labels for tool activity, and accumulating the
//     streamed reply text
//   - terminates the process unconditionally once the turn ends
//
// The package also captures every wire line to a per-turn transcript file so
// failed turns can be reconstructed afterwards. The transcript is advisory:
// its failure degrades logging but never fails a turn.
//
// Request ids are fixed by protocol convention: 0 for the handshake, 1 for
// thread lifecycle, 2 for the turn. Replies are correlated by these ids.
package codex
