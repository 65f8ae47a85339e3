package transaction

import "time"

// LockUntilDate makes the transaction invalid before t. Inputs with the
// default sequence number are switched to DefaultLockTimeSeqNumber so the
// lock is enforced.
func (tx *Transaction) LockUntilDate(t time.Time) error {
	ts := t.Unix()
	if ts < NLockTimeBlockHeightLimit {
		return newError(ErrLockTimeTooEarly, "lock time %d is below the block height limit", ts)
	}
	if ts > NLockTimeMaxValue {
		return newError(ErrNLockTimeOutOfRange, "lock time %d does not fit in 32 bits", ts)
	}
	return tx.setLockTime(uint32(ts))
}

// LockUntilBlockHeight makes the transaction invalid before block height
func (tx *Transaction) LockUntilBlockHeight(height int64) error {
	if height >= NLockTimeBlockHeightLimit {
		return newError(ErrBlockHeightTooHigh, "block height %d is above the limit", height)
	}
	if height < 0 {
		return newError(ErrNLockTimeOutOfRange, "block height %d is negative", height)
	}
	return tx.setLockTime(uint32(height))
}

// setLockTime stores lockTime and clears the signatures of typed inputs
func (tx *Transaction) setLockTime(lockTime uint32) error {
	return tx.mutate(func() error {
		for _, in := range tx.inputs {
			b := in.Base()
			if b.SequenceNumber == DefaultSeqNumber {
				b.SequenceNumber = DefaultLockTimeSeqNumber
			}
		}
		tx.LockTime = lockTime
		return tx.resetSignatures()
	})
}

// GetLockTime interprets the lock time. locked is false for a zero lock
// time; otherwise exactly one of height and at is set.
func (tx *Transaction) GetLockTime() (height uint32, at time.Time, locked bool) {
	switch {
	case tx.LockTime == 0:
		return 0, time.Time{}, false
	case tx.LockTime < NLockTimeBlockHeightLimit:
		return tx.LockTime, time.Time{}, true
	default:
		return 0, time.Unix(int64(tx.LockTime), 0).UTC(), true
	}
}
