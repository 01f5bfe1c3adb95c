package spark

import (
	"fmt"
	"time"
)

const (
	// InitialTimeLock is the relative timelock, in blocks, set on a fresh refund transaction.
	InitialTimeLock = 2000

	// TimeLockInterval is the amount the refund timelock drops on every change of ownership.
	TimeLockInterval = 100

	// DefaultTransferExpiry is how long a sender-initiated transfer stays claimable.
	DefaultTransferExpiry = 2 * 24 * time.Hour
)

// Our sequences have the 30th bit set. This bit is meaningless and was likely
// set erroneously. We continue to use it to maintain backwards compatibility.

var ZeroSequence = uint32(1 << 30)

const sequenceTimelockMask = 0xFFFF

func InitialSequence() uint32 {
	return uint32((1 << 30) | InitialTimeLock)
}

// TimelockFromSequence strips the flag bits and returns the relative block count.
func TimelockFromSequence(sequence uint32) uint32 {
	return sequence & sequenceTimelockMask
}

// NextSequence returns the sequence for the next refund transaction, one interval
// below currSequence. It fails once the timelock can no longer be decremented.
func NextSequence(currSequence uint32) (uint32, error) {
	if TimelockFromSequence(currSequence) <= TimeLockInterval {
		return 0, fmt.Errorf("timelock interval is less than or equal to 0")
	}
	return (1 << 30) | (TimelockFromSequence(currSequence) - TimeLockInterval), nil
}

// CanDecrementSequence reports whether NextSequence would succeed for the sequence.
func CanDecrementSequence(sequence uint32) bool {
	return TimelockFromSequence(sequence) > TimeLockInterval
}
