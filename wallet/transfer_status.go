package wallet

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

var preCompletedTransferStatuses = []string{
	pb.TransferStatusSenderInitiated.String(),
	pb.TransferStatusSenderKeyTweakPending.String(),
	pb.TransferStatusSenderKeyTweaked.String(),
	pb.TransferStatusReceiverKeyTweaked.String(),
	pb.TransferStatusReceiverRefundSigned.String(),
}

// Each event is named after the status it moves the transfer to.
var transferEvents = fsm.Events{
	{Name: pb.TransferStatusSenderKeyTweakPending.String(), Src: []string{pb.TransferStatusSenderInitiated.String()}, Dst: pb.TransferStatusSenderKeyTweakPending.String()},
	{Name: pb.TransferStatusSenderKeyTweaked.String(), Src: []string{pb.TransferStatusSenderInitiated.String(), pb.TransferStatusSenderKeyTweakPending.String()}, Dst: pb.TransferStatusSenderKeyTweaked.String()},
	{Name: pb.TransferStatusReceiverKeyTweaked.String(), Src: []string{pb.TransferStatusSenderKeyTweaked.String()}, Dst: pb.TransferStatusReceiverKeyTweaked.String()},
	{Name: pb.TransferStatusReceiverRefundSigned.String(), Src: []string{pb.TransferStatusReceiverKeyTweaked.String()}, Dst: pb.TransferStatusReceiverRefundSigned.String()},
	{Name: pb.TransferStatusCompleted.String(), Src: []string{pb.TransferStatusReceiverRefundSigned.String()}, Dst: pb.TransferStatusCompleted.String()},
	{Name: pb.TransferStatusExpired.String(), Src: preCompletedTransferStatuses, Dst: pb.TransferStatusExpired.String()},
	{Name: pb.TransferStatusReturned.String(), Src: []string{pb.TransferStatusSenderInitiated.String()}, Dst: pb.TransferStatusReturned.String()},
}

// forwardTransferEvents is the happy path, in order.
var forwardTransferEvents = []string{
	pb.TransferStatusSenderKeyTweakPending.String(),
	pb.TransferStatusSenderKeyTweaked.String(),
	pb.TransferStatusReceiverKeyTweaked.String(),
	pb.TransferStatusReceiverRefundSigned.String(),
	pb.TransferStatusCompleted.String(),
}

// validateTransferTransition checks that a transfer last seen in status from
// may now be in status to. Operators may have moved it several steps along
// since it was last observed, but never backwards or out of a terminal status.
func validateTransferTransition(ctx context.Context, from, to pb.TransferStatus) error {
	if from == to {
		return nil
	}
	machine := fsm.NewFSM(from.String(), transferEvents, fsm.Callbacks{})
	for range len(forwardTransferEvents) {
		event, ok := nextTransferEvent(machine, to)
		if !ok {
			break
		}
		if err := machine.Event(ctx, event); err != nil {
			return sparkerrors.ValidationInvalidState(fmt.Errorf("transfer cannot move from %s to %s: %w", from, to, err))
		}
		if machine.Current() == to.String() {
			return nil
		}
	}
	return sparkerrors.ValidationInvalidState(fmt.Errorf("transfer cannot move from %s to %s", from, to))
}

func nextTransferEvent(machine *fsm.FSM, to pb.TransferStatus) (string, bool) {
	if machine.Can(to.String()) {
		return to.String(), true
	}
	for _, event := range forwardTransferEvents {
		if machine.Can(event) {
			return event, true
		}
	}
	return "", false
}
