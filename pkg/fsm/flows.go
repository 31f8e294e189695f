package fsm

import (
	"fmt"

	"github.com/looplab/fsm"

	"jobybot/pkg/state"
)

var registrationEvents = fsm.Events{
	{Name: EventStart, Src: []string{StateIdle}, Dst: StateAwaitingName},
	{Name: EventAnswer, Src: []string{StateAwaitingName}, Dst: StateAwaitingCity},
	{Name: EventAnswer, Src: []string{StateAwaitingCity}, Dst: StateAwaitingPhoneChoice},
	{Name: EventManualPhone, Src: []string{StateAwaitingPhoneChoice}, Dst: StateAwaitingPhone},
	{Name: EventCommit, Src: []string{StateAwaitingPhoneChoice, StateAwaitingPhone}, Dst: StateIdle},
	{Name: EventCancel, Src: registrationStates, Dst: StateIdle},
}

var registrationStates = []string{
	StateAwaitingName,
	StateAwaitingCity,
	StateAwaitingPhoneChoice,
	StateAwaitingPhone,
}

var jobPostingEvents = fsm.Events{
	{Name: EventStart, Src: []string{StateIdle}, Dst: StateAwaitingTitle},
	{Name: EventAnswer, Src: []string{StateAwaitingTitle}, Dst: StateAwaitingDescription},
	{Name: EventAnswer, Src: []string{StateAwaitingDescription}, Dst: StateAwaitingPrice},
	{Name: EventCommit, Src: []string{StateAwaitingPrice}, Dst: StateIdle},
	{Name: EventCancel, Src: jobPostingStates, Dst: StateIdle},
}

var jobPostingStates = []string{
	StateAwaitingTitle,
	StateAwaitingDescription,
	StateAwaitingPrice,
}

// FlowStates lists the non-idle states of flow in conversation order.
func FlowStates(flow state.Flow) []string {
	switch flow {
	case state.FlowRegistration:
		return registrationStates
	case state.FlowJobPosting:
		return jobPostingStates
	default:
		return nil
	}
}

// newFlowFSM builds the transition table of flow positioned at current.
func newFlowFSM(flow state.Flow, current string, callbacks fsm.Callbacks) (*fsm.FSM, error) {
	var events fsm.Events
	switch flow {
	case state.FlowRegistration:
		events = registrationEvents
	case state.FlowJobPosting:
		events = jobPostingEvents
	default:
		return nil, fmt.Errorf("unknown flow '%s'", flow)
	}

	if current != StateIdle && !contains(FlowStates(flow), current) {
		return nil, fmt.Errorf("state '%s' does not belong to flow '%s'", current, flow)
	}
	if callbacks == nil {
		callbacks = fsm.Callbacks{}
	}
	return fsm.NewFSM(current, events, callbacks), nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
