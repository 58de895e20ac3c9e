// Package messaging implements the mentor/startup conversations.
//
// A conversation belongs to exactly one mentor and one startup; nobody else
// can read or post to it. Messages are stored per conversation in the shared
// KV namespace with a monotonic sequence and optional client-side dedupe ids.
// Live listeners join a per-conversation room and receive every stored
// message as a notify.Event envelope.
package messaging
