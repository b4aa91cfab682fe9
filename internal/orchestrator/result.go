package orchestrator

import "github.com/sprintagent/sprintagent/pkg/protocol"

// Result is the value handed from one agent to the next. It is one of
// RawText, TaskList, TicketKeyList or StatusList.
type Result interface {
	isResult()
}

// RawText is the unprocessed user input.
type RawText string

// TaskList is the output of the requirement agent.
type TaskList []string

// TicketKeyList holds ticket keys, or ErrorKeyPrefix entries for tickets
// that could not be created.
type TicketKeyList []string

// ErrorKeyPrefix marks a failed creation in a TicketKeyList.
const ErrorKeyPrefix = "ERROR: "

// StatusList holds pull request lookups.
type StatusList []protocol.PRCheck

func (RawText) isResult()       {}
func (TaskList) isResult()      {}
func (TicketKeyList) isResult() {}
func (StatusList) isResult()    {}
