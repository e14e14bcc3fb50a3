// Package catnip implements the userspace TCP/IP core of a kernel-bypass
// LibOS: packet buffers, a cooperative single-threaded scheduler, the
// Ethernet/ARP/IPv4/ICMP/UDP/TCP protocol stack, and the qtoken-based
// I/O-queue runtime an application links against through libos.LibOS.
//
// No package in this module keeps process-wide state. Every LibOS instance
// owns its own configuration, device, arenas and scheduler, so that two
// instances (e.g. one per CPU core, per the single-runqueue-per-poll-thread
// design) never share mutable state.
package catnip
