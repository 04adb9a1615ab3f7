package usecase

import (
	"sort"
	"strings"

	"github.com/iamvkosarev/websearch-chat/internal/model"
)

type AssemblerState int

const (
	AssemblerNotStarted AssemblerState = iota
	AssemblerStreaming
	AssemblerToolDispatch
	AssemblerDone
)

func (s AssemblerState) String() string {
	switch s {
	case AssemblerNotStarted:
		return "not-started"
	case AssemblerStreaming:
		return "streaming"
	case AssemblerToolDispatch:
		return "tool-dispatch"
	case AssemblerDone:
		return "done"
	default:
		return "unknown"
	}
}

// StreamAssembler builds one assistant message out of streamed chunks.
// Content deltas are appended in arrival order. Tool call deltas are grouped by
// index: the first delta of an index fixes the call id and name, later ones only
// extend the arguments.
type StreamAssembler struct {
	state   AssemblerState
	content strings.Builder
	calls   map[int]*model.ToolCall
}

func NewStreamAssembler() *StreamAssembler {
	return &StreamAssembler{
		calls: make(map[int]*model.ToolCall),
	}
}

func (a *StreamAssembler) State() AssemblerState {
	return a.state
}

// Apply folds chunk into the message. first is true only for the very first chunk
// of the stream, which is when the message has to be inserted rather than replaced.
func (a *StreamAssembler) Apply(chunk model.Chunk) (msg model.Message, first bool) {
	if a.state != AssemblerNotStarted && a.state != AssemblerStreaming {
		return a.Message(), false
	}
	first = a.state == AssemblerNotStarted
	a.state = AssemblerStreaming

	a.content.WriteString(chunk.Content)
	for _, delta := range chunk.ToolCalls {
		call, ok := a.calls[delta.Index]
		if !ok {
			a.calls[delta.Index] = &model.ToolCall{
				ID: delta.ID,
				Function: model.FunctionCall{
					Name:      delta.Name,
					Arguments: delta.Arguments,
				},
			}
			continue
		}
		call.Function.Arguments += delta.Arguments
	}
	return a.Message(), first
}

// Finish closes the stream and returns the accumulated tool calls in index order.
// The assembler moves to tool-dispatch when there are calls to run, otherwise to done.
func (a *StreamAssembler) Finish() []model.ToolCall {
	calls := a.toolCalls()
	if len(calls) > 0 {
		a.state = AssemblerToolDispatch
	} else {
		a.state = AssemblerDone
	}
	return calls
}

func (a *StreamAssembler) Done() {
	a.state = AssemblerDone
}

// Message is the assistant message built so far.
func (a *StreamAssembler) Message() model.Message {
	return model.Message{
		Role:      model.MessageRoleAssistant,
		Content:   a.content.String(),
		ToolCalls: a.toolCalls(),
	}
}

func (a *StreamAssembler) toolCalls() []model.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		calls = append(calls, *a.calls[i])
	}
	return calls
}
