package repository

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chess_review/internal/bootstrap"
	"chess_review/internal/domain/review"
	"chess_review/internal/errors"
)

// EngineClient drives exactly one UCI engine subprocess. Every evaluation
// serializes through mu so concurrent callers queue on the same process
// instead of spawning new ones.
type EngineClient struct {
	cfg   *bootstrap.Config
	log   *zap.SugaredLogger
	cmd   *exec.Cmd
	stdin *bufio.Writer

	mu      sync.Mutex
	lines   chan string
	dead    atomic.Bool
	stale   bool // guarded by mu: an aborted search's bestmove is still owed
	timeout time.Duration
}

// stopGrace bounds how long an aborted evaluation waits for the engine to
// acknowledge stop with its bestmove before handing the cleanup to the
// next caller.
const stopGrace = 2 * time.Second

func NewEngineClient(cfg *bootstrap.Config, log *zap.SugaredLogger) (*EngineClient, error) {
	cmd := exec.Command(cfg.EnginePath)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEngineUnavailable, err)
	}

	c := &EngineClient{
		cfg:     cfg,
		log:     log,
		cmd:     cmd,
		stdin:   bufio.NewWriter(stdinPipe),
		lines:   make(chan string, 256),
		timeout: time.Duration(cfg.EngineTimeoutMS) * time.Millisecond,
	}

	go c.listen(bufio.NewScanner(stdoutPipe))

	if err := c.handshake(); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return c, nil
}

// listen pumps engine stdout into the line channel for the lifetime of the
// process. The channel closes when the process exits, which is how callers
// learn the engine died mid-request.
func (c *EngineClient) listen(scanner *bufio.Scanner) {
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.dead.Store(true)
	close(c.lines)
	_ = c.cmd.Wait()
	c.log.Warnw("engine process exited")
}

func (c *EngineClient) handshake() error {
	if err := c.send("uci"); err != nil {
		return err
	}
	if err := c.waitFor("uciok", 10*time.Second); err != nil {
		return err
	}
	if err := c.send(fmt.Sprintf("setoption name MultiPV value %d", c.cfg.EngineMultiPV)); err != nil {
		return err
	}
	if err := c.send("isready"); err != nil {
		return err
	}
	return c.waitFor("readyok", 10*time.Second)
}

func (c *EngineClient) send(cmd string) error {
	if _, err := c.stdin.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEngineUnavailable, err)
	}
	return c.stdin.Flush()
}

func (c *EngineClient) waitFor(token string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return errors.ErrEngineUnavailable
			}
			if strings.Contains(line, token) {
				return nil
			}
		case <-deadline.C:
			return errors.ErrEngineTimeout
		}
	}
}

// drainStale discards output left over from an aborted previous request so
// a new evaluation starts from a clean read position.
func (c *EngineClient) drainStale() {
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Evaluate runs a fixed-depth MultiPV search for one position. On timeout
// or cancellation the engine is told to stop, its answer for the aborted
// search is consumed, and the process is left alive for the next caller;
// only a closed line channel marks the process as gone.
func (c *EngineClient) Evaluate(ctx context.Context, fen string, depth, multiPV int) (review.EvalResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead.Load() {
		return review.EvalResult{}, errors.ErrEngineUnavailable
	}

	// An aborted search that outlived its grace period still owes a
	// bestmove; it must not be read as this search's answer.
	if c.stale {
		if !c.awaitBestmove(c.timeout) {
			return review.EvalResult{}, errors.ErrEngineUnavailable
		}
		c.stale = false
	}
	c.drainStale()

	if err := c.send("position fen " + fen); err != nil {
		return review.EvalResult{}, err
	}
	if err := c.send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return review.EvalResult{}, err
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	best := make(map[int]review.CandidateMove, multiPV)
	maxDepth := 0

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return review.EvalResult{}, errors.ErrEngineUnavailable
			}
			if info, parsed := parseInfo(line); parsed {
				best[info.multiPV] = info.candidate
				if info.depth > maxDepth {
					maxDepth = info.depth
				}
				continue
			}
			if strings.HasPrefix(line, "bestmove") {
				return assembleResult(line, best, maxDepth, multiPV)
			}
		case <-deadline.C:
			c.abortSearch()
			return review.EvalResult{}, errors.ErrEngineTimeout
		case <-ctx.Done():
			c.abortSearch()
			return review.EvalResult{}, ctx.Err()
		}
	}
}

// abortSearch stops the running search and consumes its remaining output
// while the mutex is still held, so the next evaluation cannot inherit the
// aborted search's score and bestmove.
func (c *EngineClient) abortSearch() {
	_ = c.send("stop")
	if !c.awaitBestmove(stopGrace) {
		c.stale = true
	}
}

// awaitBestmove discards engine output until a bestmove arrives. Reports
// false when the wait times out or the process exits.
func (c *EngineClient) awaitBestmove(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return false
			}
			if strings.HasPrefix(line, "bestmove") {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

// EvaluateAdaptive applies the precision policy: a shallow pass first, then
// a deep re-evaluation when the white-POV swing against the previous ply
// crosses the configured threshold. Shallow-search noise at big swings is
// exactly where labels go wrong.
func (c *EngineClient) EvaluateAdaptive(ctx context.Context, fen string, prevWhitePOV *int) (review.EvalResult, error) {
	res, err := c.Evaluate(ctx, fen, c.cfg.EngineDepthShallow, c.cfg.EngineMultiPV)
	if err != nil {
		return res, err
	}
	if prevWhitePOV == nil {
		return res, nil
	}

	swing := review.WhitePOV(fen, res.Score) - *prevWhitePOV
	if swing < 0 {
		swing = -swing
	}
	if swing < c.cfg.SwingRecheckCP {
		return res, nil
	}

	deep, err := c.Evaluate(ctx, fen, c.cfg.EngineDepthDeep, c.cfg.EngineMultiPV)
	if err != nil {
		// The shallow result stands when the deep pass times out.
		c.log.Warnw("deep re-evaluation failed, keeping shallow result", "error", err)
		return res, nil
	}
	return deep, nil
}

func (c *EngineClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.send("quit")
}

type infoLine struct {
	multiPV   int
	depth     int
	candidate review.CandidateMove
}

// parseInfo extracts multipv rank, score and principal variation from one
// "info ..." line. Lines without a score (currmove chatter) are skipped.
func parseInfo(line string) (infoLine, bool) {
	if !strings.HasPrefix(line, "info") {
		return infoLine{}, false
	}

	fields := strings.Fields(line)
	info := infoLine{multiPV: 1}
	hasScore := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				info.depth, _ = strconv.Atoi(fields[i+1])
			}
		case "multipv":
			if i+1 < len(fields) {
				info.multiPV, _ = strconv.Atoi(fields[i+1])
			}
		case "score":
			if i+2 >= len(fields) {
				return infoLine{}, false
			}
			value, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return infoLine{}, false
			}
			switch fields[i+1] {
			case "cp":
				info.candidate.Score = review.Score{CP: value}
			case "mate":
				info.candidate.Score = review.Score{Mate: value}
			default:
				return infoLine{}, false
			}
			hasScore = true
			i += 2
		case "pv":
			if i+1 < len(fields) {
				info.candidate.Move = fields[i+1]
				info.candidate.PV = strings.Join(fields[i+1:], " ")
			}
			i = len(fields)
		}
	}

	if !hasScore || info.candidate.Move == "" {
		return infoLine{}, false
	}
	return info, true
}

func assembleResult(bestmoveLine string, best map[int]review.CandidateMove, depth, multiPV int) (review.EvalResult, error) {
	res := review.EvalResult{Depth: depth}

	fields := strings.Fields(bestmoveLine)
	if len(fields) > 1 {
		res.BestMove = fields[1]
	}

	for rank := 1; rank <= multiPV; rank++ {
		if cand, ok := best[rank]; ok {
			res.Candidates = append(res.Candidates, cand)
		}
	}

	if len(res.Candidates) == 0 {
		return res, fmt.Errorf("%w: no scored lines before bestmove", errors.ErrEngineUnavailable)
	}

	res.Score = res.Candidates[0].Score
	if res.BestMove == "" || res.BestMove == "(none)" {
		res.BestMove = res.Candidates[0].Move
	}
	return res, nil
}
