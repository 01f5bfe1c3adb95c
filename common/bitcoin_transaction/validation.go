package bitcointransaction

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	"github.com/lightsparkdev/spark-wallet/common/keys"
)

// VerifyRefundTx checks that a refund received from an operator spends output 0 of
// the node tx and pays the full amount to refundDestPubkey.
func VerifyRefundTx(rawRefundTx []byte, rawNodeTx []byte, refundDestPubkey keys.Public) error {
	refundTx, err := common.TxFromRawTxBytes(rawRefundTx)
	if err != nil {
		return fmt.Errorf("failed to parse refund tx: %w", err)
	}
	sequence, err := GetAndValidateUserSequence(rawRefundTx)
	if err != nil {
		return err
	}
	expected, _, err := CreateRefundTxForNode(sequence, rawNodeTx, refundDestPubkey)
	if err != nil {
		return err
	}
	if err := common.CompareTransactions(expected, refundTx); err != nil {
		return fmt.Errorf("refund tx does not match expected construction: %w", err)
	}
	return nil
}

// ValidateNextRefundSequence checks that newRefund has a timelock exactly one
// interval below oldRefund.
func ValidateNextRefundSequence(oldRefund, newRefund *wire.MsgTx) error {
	if len(oldRefund.TxIn) == 0 || len(newRefund.TxIn) == 0 {
		return fmt.Errorf("refund transaction has no inputs")
	}
	current := GetTimelockFromSequence(oldRefund.TxIn[0].Sequence)
	if current < spark.TimeLockInterval {
		return fmt.Errorf("current timelock %d in refund transaction is too small to subtract TimeLockInterval %d",
			current, spark.TimeLockInterval)
	}
	return ValidateSequenceTimelock(newRefund.TxIn[0].Sequence, current-spark.TimeLockInterval)
}

func GetAndValidateUserSequence(rawTxBytes []byte) (uint32, error) {
	// Validate that bit 31 (disable flag) and bit 22 (type flag) are NOT set
	const (
		disableBit = uint32(1 << 31) // Bit 31: disables BIP68 relative timelock
		typeBit    = uint32(1 << 22) // Bit 22: 0=block height, 1=time-based
	)

	tx, err := common.TxFromRawTxBytes(rawTxBytes)
	if err != nil {
		return 0, err
	}

	if len(tx.TxIn) == 0 {
		return 0, fmt.Errorf("transaction has no inputs")
	}
	userSequence := tx.TxIn[0].Sequence

	if userSequence&disableBit != 0 {
		return 0, fmt.Errorf("sequence has bit 31 set (timelock disabled)")
	}
	if userSequence&typeBit != 0 {
		return 0, fmt.Errorf("sequence has bit 22 set (time-based timelock not supported)")
	}

	return userSequence, nil
}

func GetTimelockFromSequence(sequence uint32) uint32 {
	return spark.TimelockFromSequence(sequence)
}

func ValidateSequenceTimelock(sequence uint32, expectedTimelock uint32) error {
	providedTimelock := GetTimelockFromSequence(sequence)
	if providedTimelock != expectedTimelock {
		return fmt.Errorf("provided timelock %d does not match expected timelock %d", providedTimelock, expectedTimelock)
	}
	return nil
}
