package session

import (
	"fmt"
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/transport"
)

// dispatchTable maps every inbound OSC address to its handler. Anything not
// listed here is dropped by the dispatcher.
func (s *Session) dispatchTable() map[string]transport.Handler {
	return map[string]transport.Handler{
		"/status.reply":    s.handleStatusReply,
		"/done":            s.handleDone,
		"/fail":            s.handleFail,
		"/n_go":            s.handleNodeGo,
		"/n_end":           s.handleNodeEnd,
		"/n_info":          s.handleNodeInfo,
		"/mcp/analysis":    func(msg *osc.Message) { s.tel.HandleAnalysis(msg.Arguments) },
		"/mcp/meter":       func(msg *osc.Message) { s.tel.HandleMeter(msg.Arguments) },
		"/mcp/onset":       func(msg *osc.Message) { s.tel.HandleOnset(msg.Arguments) },
		"/mcp/spectrum":    func(msg *osc.Message) { s.tel.HandleSpectrum(msg.Arguments) },
		"/mcp/eval/result": s.handleEvalResult,
	}
}

// handleStatusReply parses a /status.reply:
//
//	[unused, ugens, synths, groups, synthdefs, avgCPU, peakCPU,
//	 nominalSR, actualSR]
//
// and hands it to the waiter, if any. Without a waiter the reply is from an
// already-abandoned probe and is dropped.
func (s *Session) handleStatusReply(msg *osc.Message) {
	args := msg.Arguments
	if len(args) < 9 {
		return
	}
	status := model.ServerStatus{Running: true}
	status.NumUGens, _ = transport.ToInt64(args[1])
	status.NumSynths, _ = transport.ToInt64(args[2])
	status.NumGroups, _ = transport.ToInt64(args[3])
	status.NumSynthDefs, _ = transport.ToInt64(args[4])
	status.AvgCPU, _ = transport.ToFloat64(args[5])
	status.PeakCPU, _ = transport.ToFloat64(args[6])
	status.SampleRate, _ = transport.ToFloat64(args[8])

	select {
	case s.statusCh <- status:
	default:
	}
}

func (s *Session) handleDone(msg *osc.Message) {
	args := msg.Arguments
	if len(args) == 0 {
		return
	}
	text := fmt.Sprintf("%v completed", args[0])
	if len(args) > 1 {
		text += fmt.Sprintf(" %v", args[1:])
	}
	s.logs.Append(model.LogDone, text)
}

func (s *Session) handleFail(msg *osc.Message) {
	parts := make([]string, len(msg.Arguments))
	for i, a := range msg.Arguments {
		parts[i] = fmt.Sprintf("%v", a)
	}
	text := "FAIL: " + strings.Join(parts, " ")
	s.logs.Append(model.LogFail, text)
	s.log.Warn("scsynth failure", zap.String("detail", text))
}

// handleNodeGo logs /n_go: [nodeID, parent, prev, next, isGroup].
func (s *Session) handleNodeGo(msg *osc.Message) {
	args := msg.Arguments
	if len(args) < 4 {
		return
	}
	nodeID, _ := transport.ToInt64(args[0])
	parent, _ := transport.ToInt64(args[1])
	nodeType := "synth"
	if len(args) > 4 {
		if isGroup, _ := transport.ToInt64(args[4]); isGroup == 1 {
			nodeType = "group"
		}
	}
	s.logs.Append(model.LogNode, fmt.Sprintf("Node %d (%s) started in group %d", nodeID, nodeType, parent))
}

// handleNodeEnd logs /n_end and deregisters the analyzer if it was the node
// that died — scsynth can free it behind our back (cmd-period, g_freeAll
// from another client).
func (s *Session) handleNodeEnd(msg *osc.Message) {
	args := msg.Arguments
	if len(args) < 1 {
		return
	}
	nodeID, ok := transport.ToInt64(args[0])
	if !ok {
		return
	}
	s.logs.Append(model.LogNode, fmt.Sprintf("Node %d ended", nodeID))
	s.tel.ClearAnalyzerNode(nodeID)
}

func (s *Session) handleNodeInfo(msg *osc.Message) {
	args := msg.Arguments
	if len(args) < 4 {
		return
	}
	nodeID, _ := transport.ToInt64(args[0])
	parent, _ := transport.ToInt64(args[1])
	prev, _ := transport.ToInt64(args[2])
	next, _ := transport.ToInt64(args[3])
	s.logs.Append(model.LogNode, fmt.Sprintf("Node %d: parent=%d, prev=%d, next=%d", nodeID, parent, prev, next))
}

// handleEvalResult resolves /mcp/eval/result: [requestID, success, output].
// Results for requests nobody is waiting on (timed out) are discarded.
func (s *Session) handleEvalResult(msg *osc.Message) {
	args := msg.Arguments
	if len(args) < 3 {
		s.logs.Append(model.LogFail, fmt.Sprintf("Malformed eval result: expected 3 args, got %d", len(args)))
		return
	}
	id, okID := transport.ToInt64(args[0])
	success, okS := transport.ToInt64(args[1])
	if !okID || !okS {
		s.logs.Append(model.LogFail, "Invalid eval result data")
		return
	}
	output, _ := transport.ToString(args[2])
	if !s.reqs.Deliver(id, success != 0, output) {
		s.log.Debug("discarded eval result with no waiter", zap.Int64("request", id))
	}
}
