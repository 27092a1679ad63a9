package domain

import "github.com/bwmarrin/snowflake"

// TransitionOptions qualify a lifecycle transition request.
type TransitionOptions struct {
	// PartialDelivery bills the delivered items when moving into
	// IN_PROGRESS instead of waiting for completion.
	PartialDelivery bool
	// DeliveredItemIDs selects the lines covered by a partial delivery.
	// Empty with PartialDelivery set means every unbilled line.
	DeliveredItemIDs []snowflake.ID
	Notes            string
}

// Command is a side effect the executor must carry out as part of a
// transition.
type Command interface{ isCommand() }

type CommandCreateInvoice struct {
	// Partial bills only the delivered lines; the remainder stays open
	// for the completion invoice.
	Partial bool
}

type CommandNotify struct {
	Event string
}

func (CommandCreateInvoice) isCommand() {}
func (CommandNotify) isCommand()        {}

// Plan decides a transition without touching storage. It returns the
// commands the executor runs inside the same transaction as the status
// update.
func Plan(current, target Status, opts TransitionOptions) ([]Command, error) {
	if !target.Valid() {
		return nil, ErrInvalidStatus
	}
	if current.Terminal() {
		return nil, ErrInvalidTransition
	}
	if target == current {
		return nil, ErrInvalidTransition
	}

	if target == StatusCancelled {
		return nil, nil
	}
	if target.Rank() <= current.Rank() {
		return nil, ErrInvalidTransition
	}

	var cmds []Command
	switch target {
	case StatusInProgress:
		if opts.PartialDelivery {
			cmds = append(cmds, CommandCreateInvoice{Partial: true})
		}
	case StatusCompleted:
		cmds = append(cmds, CommandCreateInvoice{})
		cmds = append(cmds, CommandNotify{Event: "service_order.completed"})
	}
	return cmds, nil
}
