// Package lockstep provides reliable, in-order, per-frame input delivery
// across a fixed set of peers over an unreliable, unordered datagram
// transport, plus the cyclic barrier that gates a lockstep simulation's
// tick on every peer's input for the current frame.
//
// The three load-bearing types are ReceivingQueue (the per-sender reorder
// buffer and selective-ack builder), TransmissionQueue (the per-receiver
// unacked-frame store driving retransmission), and CyclicBarrier (the
// reusable N-way rendezvous). Session wires a ReceivingQueue and a
// TransmissionQueue per remote peer and one CyclicBarrier shared by all of
// them, together with a receiver worker and a sender worker over a
// caller-supplied PacketConn.
//
// Out of scope: discovery/NAT traversal, authentication/encryption, dynamic
// peer set changes mid-session, and variable per-peer frame rates.
package lockstep
