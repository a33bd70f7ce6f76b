// Package device defines the Bluetooth Low Energy scanning capability consumed
// by scan sessions: the Scanner and Subscription contracts, the raw
// advertisement Event and the normalized scan errors.
//
// Concrete scanners live in subpackages:
//   - go-ble: the host radio through github.com/go-ble/ble
//   - simulated: an in-process beacon emitter for tests and demos
package device
