// Package session keeps one long-lived shell per agent run.
//
// Each Run writes the command to the shell's stdin wrapped in eval, followed
// by printf statements that emit a fresh marker on stdout (with the exit
// status and working directory) and on stderr. Run returns once the marker
// has been read from both streams. Because the shell process lives on, cd,
// exported variables and background jobs persist between calls.
//
// A timeout or an unexpected exit kills the shell's process group and starts
// a new shell in the last known working directory, or in the session's
// starting directory when that one no longer exists. A second consecutive
// failure is reported as ErrSessionFailed and no further respawn happens.
// A successful command resets the count, so a run may respawn the shell more
// than once as long as no two failures are adjacent; the total is bounded
// only by the agent's iteration ceiling.
//
// Output is captured in bounded memory: past MaxOutputBytes only the head
// and a sliding tail of each stream are retained.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/superagent/errors"
)

var (
	ErrSessionTimeout = errors.Sentinel("shell command timed out")
	ErrSessionDead    = errors.Sentinel("shell process exited unexpectedly")
	ErrSessionFailed  = errors.Sentinel("shell session failed")
	ErrSessionClosed  = errors.Sentinel("shell session is closed")
)

// maxConsecutiveFailures is how many timeouts or deaths in a row end the
// session; the first one is absorbed by a respawn.
const maxConsecutiveFailures = 2

// Output is the result of one command.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	// Cwd is the shell's working directory after the command.
	Cwd string
}

type Options struct {
	// Shell is the bash binary. Defaults to "bash" on PATH.
	Shell string
	Dir   string
	Env   map[string]string
	// Timeout applies when Run is given a zero timeout.
	Timeout time.Duration
	// MaxOutputBytes caps each stream; zero means unlimited.
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Session is the persistent shell. Runs are serialized.
type Session struct {
	opts     Options
	logger   *slog.Logger
	mu       sync.Mutex
	proc     *process
	cwd      string
	failures int
	started  bool
	closed   bool
}

// New prepares a session. No process is started until the first Run.
func New(opts Options) *Session {
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cwd := opts.Dir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	return &Session{opts: opts, logger: opts.Logger, cwd: cwd}
}

// process is one incarnation of the shell.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout chan string
	stderr chan string
	outR   *os.File
	errR   *os.File
	exited chan struct{}
	done   chan struct{}
	once   sync.Once
}

// spawnDir picks the directory for a new shell. The last known directory
// may have been removed by a command; the shell then starts in the
// session's starting directory, or the temp directory as a last resort.
func (s *Session) spawnDir() string {
	for _, dir := range []string{s.cwd, s.opts.Dir, os.TempDir()} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if dir != s.cwd {
				s.logger.Warn("shell directory is gone, starting elsewhere", "missing", s.cwd, "dir", dir)
			}
			return dir
		}
	}
	return s.cwd
}

func (s *Session) spawn() error {
	s.cwd = s.spawnDir()
	cmd := exec.Command(s.opts.Shell, "--noprofile", "--norc")
	cmd.Dir = s.cwd
	cmd.Env = append(os.Environ(), envList(s.opts.Env)...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrapf(err, "failed to open shell stdin")
	}
	// Plain pipes instead of StdoutPipe: Wait must not close the read ends
	// while the readers are still draining them.
	outR, outW, err := os.Pipe()
	if err != nil {
		return errors.Wrapf(err, "failed to create stdout pipe")
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return errors.Wrapf(err, "failed to create stderr pipe")
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return errors.Wrapf(err, "failed to start shell %s", s.opts.Shell)
	}
	outW.Close()
	errW.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: make(chan string, 256),
		stderr: make(chan string, 256),
		outR:   outR,
		errR:   errR,
		exited: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.pump(outR, p.stdout)
	go p.pump(errR, p.stderr)
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	s.proc = p
	s.started = true
	s.logger.Debug("shell started", "pid", cmd.Process.Pid, "cwd", s.cwd)
	return nil
}

// maxChunk bounds a single read; longer lines arrive in several chunks.
const maxChunk = 64 * 1024

// pump forwards lines from r until EOF or until the process is killed.
func (p *process) pump(r io.Reader, ch chan<- string) {
	defer close(ch)
	br := bufio.NewReaderSize(r, maxChunk)
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			select {
			case ch <- string(chunk):
			case <-p.done:
				return
			}
		}
		if err != nil && err != bufio.ErrBufferFull {
			return
		}
	}
}

func (p *process) kill() {
	p.once.Do(func() {
		killProcessGroup(p.cmd)
		close(p.done)
		p.stdin.Close()
		p.outR.Close()
		p.errR.Close()
	})
}

// Run executes command in the shell and waits at most timeout for it.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Output{}, ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	if s.proc == nil {
		if err := s.spawn(); err != nil {
			return Output{}, fmt.Errorf("%w: %w", ErrSessionFailed, err)
		}
	}

	out, err := s.exchange(ctx, command, timeout)
	if err == nil {
		s.failures = 0
		s.cwd = out.Cwd
		return out, nil
	}

	s.proc.kill()
	s.proc = nil

	if ctx.Err() != nil {
		s.logger.Debug("shell killed on cancellation", "cwd", s.cwd)
		return Output{}, ctx.Err()
	}

	s.failures++
	s.logger.Warn("shell command failed", "error", err, "consecutive_failures", s.failures)
	if s.failures >= maxConsecutiveFailures {
		return Output{}, fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}
	if spawnErr := s.spawn(); spawnErr != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrSessionFailed, spawnErr)
	}
	return Output{}, err
}

func (s *Session) exchange(ctx context.Context, command string, timeout time.Duration) (Output, error) {
	p := s.proc
	marker := "__SUPERAGENT_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	script := "eval " + quote(command) + " </dev/null\n" +
		"__superagent_rc=$?\n" +
		"printf '\\n%s %d %s\\n' '" + marker + "' \"$__superagent_rc\" \"$PWD\"\n" +
		"printf '\\n%s\\n' '" + marker + "' >&2\n"

	if _, err := io.WriteString(p.stdin, script); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrSessionDead, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		stdout  = newCapture(s.opts.MaxOutputBytes)
		stderr  = newCapture(s.opts.MaxOutputBytes)
		out     Output
		outDone bool
		errDone bool
	)
	stdoutCh, stderrCh := p.stdout, p.stderr
	for !outDone || !errDone {
		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case <-timer.C:
			return Output{}, fmt.Errorf("%w after %s", ErrSessionTimeout, timeout)
		case <-p.exited:
			return Output{}, ErrSessionDead
		case line, ok := <-stdoutCh:
			if !ok {
				return Output{}, ErrSessionDead
			}
			if rest, found := strings.CutPrefix(strings.TrimRight(line, "\n"), marker+" "); found {
				out.ExitStatus, out.Cwd = parseTrailer(rest, s.cwd)
				outDone = true
				stdoutCh = nil
				continue
			}
			stdout.write(line)
		case line, ok := <-stderrCh:
			if !ok {
				return Output{}, ErrSessionDead
			}
			if strings.TrimRight(line, "\n") == marker {
				errDone = true
				stderrCh = nil
				continue
			}
			stderr.write(line)
		}
	}

	// The trailer printf starts with a newline so the marker always begins
	// a line; String drops it from the captured text.
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	return out, nil
}

func parseTrailer(rest, fallbackCwd string) (int, string) {
	status, cwd, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(status)
	if err != nil {
		code = -1
	}
	if cwd == "" {
		cwd = fallbackCwd
	}
	return code, cwd
}

// Cwd is the last known working directory of the shell.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Alive reports whether a shell process is currently running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.exited:
		return false
	default:
		return true
	}
}

// Started reports whether a shell was ever spawned.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Close kills the shell and its process group. It is safe to call more than
// once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.proc != nil {
		s.proc.kill()
		<-s.proc.exited
		s.proc = nil
		s.logger.Debug("shell closed", "cwd", s.cwd)
	}
	return nil
}

// quote wraps s in single quotes for the shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// truncate keeps the head and tail of s when it exceeds max bytes.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] + fmt.Sprintf("\n... [%d bytes truncated] ...\n", len(s)-2*half) + s[len(s)-half:]
}
