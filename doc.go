// Package fork provides an object handle to a child process of the current
// program, with optional byte/object channels between parent and child, a
// control channel carrying the child's terminal outcome (return value,
// exception, death notice) back to the parent, and lifecycle queries
// (alive/dead, exit status, signaling).
//
// # Overview
//
// A Go runtime with live threads cannot duplicate itself with a bare fork,
// so the handle re-executes the current program and hands the child a fixed
// file descriptor layout. The unit of work therefore has to be a function
// registered under a name before launch, identically in both process
// images:
//
//	func main() {
//		fork.Register("work", work)
//		fork.Init() // child branch never returns from here
//
//		h, err := fork.New("work", fork.Return|fork.ToFork)
//		...
//	}
//
// # Capabilities
//
// Channels are negotiated at construction through capability flags:
// to_fork and from_fork grant the two data directions, ctrl the control
// channel, and return / exceptions / death_notice the outcome frames
// carried on it. Requesting return implies exceptions; requesting any
// outcome frame implies ctrl. Operations on a facility that was not
// negotiated fail with a CapabilityError; operations before Start fail
// with ErrNotRunning.
//
// # Protocol
//
// The control channel is written only by the child and drained by the
// parent until end of stream:
//
// ## return_value
//
//   - sent when the work returns and return was granted
//   - payload: the work's result
//
// ## exception
//
//   - sent when the work fails and exceptions was granted
//   - payload: the original error, or a synthesized *UndumpableError when
//     the original cannot be serialized
//
// ## death_notice
//
//   - sent from the child's final cleanup stage when death_notice was
//     granted; carries no payload and guarantees exit status is available
//     to the parent after draining
//
// The handle owns its OS resources exclusively and must not be copied; it
// is intended for single-threaded use within each process image.
package fork
