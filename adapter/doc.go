// Package adapter binds one exported core function to its declared
// signature.
//
// A call runs as one uninterrupted sequence:
//
//  1. lower the arguments into flat core values
//  2. invoke the export; a trap is errors.ErrTrap and ends the call
//  3. revalidate the memory view and lift the result
//  4. run the declared post-return exactly once with the raw result words,
//     whether or not the lift succeeded
//  5. return the lifted value, or the lift error
//
// Lifted values never alias guest memory, so they remain valid after the
// post-return hook has released the guest's buffers.
package adapter
