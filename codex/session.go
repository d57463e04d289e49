package codex

import (
	"bufio"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m4xw311/codexgram/errors"
)

// ApprovalDecision is the answer sent for every approval request the
// app-server raises during a turn. The default policy trusts the external
// agent and accepts unconditionally; callers may configure decline instead.
type ApprovalDecision string

const (
	ApprovalAccept  ApprovalDecision = "accept"
	ApprovalDecline ApprovalDecision = "decline"
)

const defaultStatusInterval = 1500 * time.Millisecond

// TurnRequest describes one instruction to run.
type TurnRequest struct {
	// Instruction is the natural-language input for the turn.
	Instruction string
	// ThreadID, when set, resumes an existing thread instead of starting a
	// fresh one.
	ThreadID string
	// WorkingDir, when set, is passed to the app-server as the turn's cwd.
	WorkingDir string
	// Progress, when set, receives human-readable status labels while the
	// agent works. Failures inside the sink are swallowed.
	Progress func(label string)
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	// Reply is the agent's final text: the completed-item text when one
	// arrived, otherwise the concatenated deltas. May be empty.
	Reply string
	// ThreadID identifies the thread for later resumption.
	ThreadID string
	// LogPath is the transcript file location, empty when transcript logging
	// degraded.
	LogPath string
}

// Runner drives complete turns against the codex app-server. A Runner is
// stateless between turns and safe for concurrent use; every RunTurn spawns
// its own process.
type Runner struct {
	// Command overrides the codex executable (CODEX_COMMAND still applies
	// when empty).
	Command string
	// LogDir is where per-turn transcripts are written.
	LogDir string
	// Approval is the decision sent for every approval request. Empty means
	// accept.
	Approval ApprovalDecision
	// StatusInterval is the minimum gap between emitted progress labels.
	// Zero means the default; negative disables rate limiting.
	StatusInterval time.Duration
	// Logger receives structured diagnostics. Nil means no logging.
	Logger *zap.Logger

	// start substitutes the process launcher in tests.
	start func() (*Process, error)
}

// RunTurn executes one complete instruction-to-reply exchange: spawn,
// handshake, start or resume the thread, stream the turn to completion, and
// tear the process down. The spawned process never outlives the call.
//
// Cancelling ctx kills the process; the error then wraps ctx.Err so callers
// can distinguish timeouts from protocol failures.
func (r *Runner) RunTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transcript := NewTranscript(r.LogDir)
	defer transcript.Close()
	if transcript.Degraded() {
		logger.Warn("transcript logging degraded; turn continues without wire capture",
			zap.String("log_dir", r.LogDir))
	}

	proc, err := r.launch()
	if err != nil {
		return TurnResult{}, err
	}
	defer proc.Kill()

	// Kill the process when the caller gives up; the read loop then sees a
	// premature stream close.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			proc.Kill()
		case <-watchDone:
		}
	}()

	// The stderr drain is the only activity concurrent with the read loop;
	// it shares nothing with it but the transcript.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		scanner := bufio.NewScanner(proc.Stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			transcript.Record("stderr", scanner.Text())
		}
	}()

	turn := &turnState{
		runner:     r,
		req:        req,
		proc:       proc,
		transcript: transcript,
		logger:     logger,
		threadID:   req.ThreadID,
	}

	err = turn.run(ctx)

	// Unconditional cleanup: terminate the process so the drain finishes,
	// then wait for it to release the transcript.
	proc.Kill()
	<-drained

	if err != nil {
		return TurnResult{}, err
	}
	if turn.threadID == "" {
		return TurnResult{}, &MissingThreadError{}
	}
	return TurnResult{
		Reply:    turn.reply(),
		ThreadID: turn.threadID,
		LogPath:  transcript.Path(),
	}, nil
}

func (r *Runner) launch() (*Process, error) {
	if r.start != nil {
		return r.start()
	}
	return StartProcess(r.Command)
}

func (r *Runner) approval() ApprovalDecision {
	if r.Approval == "" {
		return ApprovalAccept
	}
	return r.Approval
}

func (r *Runner) statusInterval() time.Duration {
	if r.StatusInterval == 0 {
		return defaultStatusInterval
	}
	if r.StatusInterval < 0 {
		return 0
	}
	return r.StatusInterval
}

// turnState holds the per-turn protocol state machine.
type turnState struct {
	runner     *Runner
	req        TurnRequest
	proc       *Process
	transcript *Transcript
	logger     *zap.Logger

	ctx context.Context

	threadID    string
	turnStarted bool
	streaming   bool

	deltas    strings.Builder
	finalText string
	completed bool

	lastLabel   string
	lastLabelAt time.Time
}

func (t *turnState) run(ctx context.Context) error {
	t.ctx = ctx
	if err := t.send(InitializeMessage()); err != nil {
		return err
	}
	// Fire-and-forget: no reply is awaited for the initialized notification.
	if err := t.send(InitializedMessage()); err != nil {
		return err
	}

	if t.req.ThreadID != "" {
		if err := t.send(ThreadResumeMessage(t.req.ThreadID, t.req.WorkingDir)); err != nil {
			return err
		}
	} else {
		if err := t.send(ThreadStartMessage(t.req.WorkingDir)); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(t.proc.Stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.transcript.Record("stdout", line)

		msg, err := Decode([]byte(line))
		if err != nil {
			// Protocol corruption must surface, not be skipped.
			return &ProtocolError{Reason: "undecodable line", Err: err}
		}

		done, err := t.handle(Classify(msg))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	// The stream closed before turn/completed arrived.
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "turn aborted")
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return &ProtocolError{Reason: "reading process output", Err: err}
	}
	return &ProtocolError{Reason: "process closed its output before the turn completed"}
}

// handle dispatches one classified event. It returns done=true on the
// terminal turn/completed event.
func (t *turnState) handle(ev Event) (bool, error) {
	switch ev.Kind {
	case EventApprovalRequest:
		// Automatic, non-interactive policy: answer inline and keep reading.
		if err := t.send(ApprovalResponseMessage(ev.RequestID, t.runner.approval())); err != nil {
			return false, err
		}
		t.logger.Debug("answered approval request",
			zap.Any("request_id", ev.RequestID),
			zap.String("decision", string(t.runner.approval())))

	case EventThreadReply:
		if ev.ErrMessage != "" {
			return false, &ThreadError{Message: ev.ErrMessage}
		}
		// A resume reply may omit the id; keep the one the caller supplied.
		if t.threadID == "" {
			t.threadID = ev.ThreadID
		}
		// Duplicate replies after the turn started must not restart it.
		if t.threadID != "" && !t.turnStarted {
			if err := t.send(TurnStartMessage(t.threadID, t.req.Instruction, t.req.WorkingDir)); err != nil {
				return false, err
			}
			t.turnStarted = true
		}

	case EventTurnStartReply:
		if ev.ErrMessage != "" {
			return false, &TurnError{Message: ev.ErrMessage}
		}

	case EventItemStarted:
		t.emitStatus(ev.StatusLabel)

	case EventAgentDelta:
		t.streaming = true
		t.deltas.WriteString(ev.Text)

	case EventAgentCompleted:
		t.streaming = true
		t.finalText = ev.Text
		t.completed = true

	case EventTurnCompleted:
		return true, nil
	}
	return false, nil
}

func (t *turnState) send(msg Message) error {
	line, err := Encode(msg)
	if err != nil {
		return err
	}
	t.transcript.Record("stdin", strings.TrimSuffix(string(line), "\n"))
	if _, err := t.proc.Stdin.Write(line); err != nil {
		// A cancelled caller's watchdog closes stdin under us; report the
		// cancellation, not a protocol failure, just as the read path does.
		if t.ctx != nil && t.ctx.Err() != nil {
			return errors.Wrapf(t.ctx.Err(), "turn aborted")
		}
		return &ProtocolError{Reason: "writing to process", Err: err}
	}
	return nil
}

// emitStatus forwards a progress label to the sink, suppressing labels once
// the reply has begun streaming, deduplicating consecutive repeats, and rate
// limiting the rest. Sink panics and errors never abort the turn.
func (t *turnState) emitStatus(label string) {
	if label == "" || t.req.Progress == nil || t.streaming {
		return
	}
	if label == t.lastLabel {
		return
	}
	if interval := t.runner.statusInterval(); interval > 0 && !t.lastLabelAt.IsZero() {
		if time.Since(t.lastLabelAt) < interval {
			return
		}
	}
	t.lastLabel = label
	t.lastLabelAt = time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.logger.Warn("progress sink panicked", zap.Any("panic", rec))
			}
		}()
		t.req.Progress(label)
	}()
}

// reply returns the final text per the precedence rule: completed-item text
// wins over accumulated deltas.
func (t *turnState) reply() string {
	if t.completed {
		return t.finalText
	}
	return t.deltas.String()
}
