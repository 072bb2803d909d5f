package session

import (
	"context"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/superagent/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	opts.Shell = bash
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	s := New(opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCapturesOutputAndStatus(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()

	out, err := s.Run(ctx, "echo hello; echo oops >&2; exit_code() { return 3; }; exit_code", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Equal(t, "oops\n", out.Stderr)
	assert.Equal(t, 3, out.ExitStatus)
}

func TestRunWithoutTrailingNewline(t *testing.T) {
	s := newTestSession(t, Options{})

	out, err := s.Run(context.Background(), "printf abc", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Stdout)
	assert.Equal(t, "", out.Stderr)
	assert.Equal(t, 0, out.ExitStatus)
}

func TestWorkingDirectoryPersists(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()
	target, err := filepath.EvalSymlinks(os.TempDir())
	require.NoError(t, err)

	_, err = s.Run(ctx, "cd "+target, 5*time.Second)
	require.NoError(t, err)

	out, err := s.Run(ctx, "pwd", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, target, strings.TrimSpace(out.Stdout))
	assert.Equal(t, target, s.Cwd())
}

func TestEnvironmentPersists(t *testing.T) {
	s := newTestSession(t, Options{Env: map[string]string{"SUPERAGENT_TEST": "configured"}})
	ctx := context.Background()

	out, err := s.Run(ctx, "echo $SUPERAGENT_TEST", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "configured\n", out.Stdout)

	_, err = s.Run(ctx, "export GREETING=hi", 5*time.Second)
	require.NoError(t, err)
	out, err = s.Run(ctx, "echo $GREETING", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.Stdout)
}

func TestSyntaxErrorKeepsShellAlive(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()

	out, err := s.Run(ctx, `echo "unterminated`, 5*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, 0, out.ExitStatus)

	out, err = s.Run(ctx, "echo still here", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "still here\n", out.Stdout)
}

func TestCommandCannotReadProtocolFromStdin(t *testing.T) {
	s := newTestSession(t, Options{})

	out, err := s.Run(context.Background(), "cat; echo after", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after\n", out.Stdout)
}

func TestOutputResemblingMarkerIsKept(t *testing.T) {
	s := newTestSession(t, Options{})

	out, err := s.Run(context.Background(), "echo __SUPERAGENT_deadbeef__ 0 /", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "__SUPERAGENT_deadbeef__ 0 /\n", out.Stdout)
}

func TestTimeoutRespawnsInLastDirectory(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	_, err = s.Run(ctx, "cd "+dir, 5*time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Run(ctx, "sleep 30", 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)

	out, err := s.Run(ctx, "pwd", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(out.Stdout))
}

func TestSecondConsecutiveTimeoutIsFatal(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()

	_, err := s.Run(ctx, "sleep 30", 200*time.Millisecond)
	require.True(t, errors.Is(err, ErrSessionTimeout), "got %v", err)

	_, err = s.Run(ctx, "sleep 30", 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionFailed), "got %v", err)
	assert.True(t, errors.Is(err, ErrSessionTimeout), "cause should be kept, got %v", err)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()

	_, err := s.Run(ctx, "sleep 30", 200*time.Millisecond)
	require.True(t, errors.Is(err, ErrSessionTimeout))
	_, err = s.Run(ctx, "true", 5*time.Second)
	require.NoError(t, err)
	_, err = s.Run(ctx, "sleep 30", 200*time.Millisecond)
	assert.True(t, errors.Is(err, ErrSessionTimeout), "got %v", err)
	assert.False(t, errors.Is(err, ErrSessionFailed))
}

func TestShellExitIsReportedDead(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := context.Background()

	_, err := s.Run(ctx, "exit 0", 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionDead), "got %v", err)

	out, err := s.Run(ctx, "echo back", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "back\n", out.Stdout)
}

func TestCancellationKillsShell(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := s.Run(ctx, "sleep 30", 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Alive())
}

func TestLazyStartAndIdempotentClose(t *testing.T) {
	s := newTestSession(t, Options{})
	assert.False(t, s.Started())
	assert.False(t, s.Alive())

	_, err := s.Run(context.Background(), "true", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, s.Started())
	assert.True(t, s.Alive())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Alive())

	_, err = s.Run(context.Background(), "true", time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestOutputIsTruncated(t *testing.T) {
	s := newTestSession(t, Options{MaxOutputBytes: 100})

	out, err := s.Run(context.Background(), "head -c 5000 /dev/zero | tr '\\0' 'x'", 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "bytes truncated")
	assert.Less(t, len(out.Stdout), 200)
}

func TestTimeoutRespawnsWhenDirectoryWasRemoved(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	s := newTestSession(t, Options{Dir: base})
	ctx := context.Background()

	_, err = s.Run(ctx, "mkdir gone && cd gone && rmdir ../gone", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "gone"), s.Cwd())

	_, err = s.Run(ctx, "sleep 5", 300*time.Millisecond)
	require.ErrorIs(t, err, ErrSessionTimeout)
	assert.NotErrorIs(t, err, ErrSessionFailed)
	assert.True(t, s.Alive())

	out, err := s.Run(ctx, "pwd", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, base+"\n", out.Stdout)
}

func TestLargeOutputStaysInBoundedMemory(t *testing.T) {
	s := newTestSession(t, Options{MaxOutputBytes: 1000})

	var (
		peak uint64
		stop = make(chan struct{})
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		var ms runtime.MemStats
		for {
			runtime.ReadMemStats(&ms)
			if ms.HeapAlloc > peak {
				peak = ms.HeapAlloc
			}
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}()

	out, err := s.Run(context.Background(), "head -c 100000000 /dev/zero | tr '\\0' a", 60*time.Second)
	close(stop)
	<-done
	require.NoError(t, err)

	assert.Less(t, len(out.Stdout), 1100)
	assert.Contains(t, out.Stdout, "[99999000 bytes truncated]")
	assert.True(t, strings.HasPrefix(out.Stdout, strings.Repeat("a", 500)))
	assert.True(t, strings.HasSuffix(out.Stdout, strings.Repeat("a", 500)))
	assert.Less(t, peak, uint64(64<<20), "peak heap %d bytes", peak)
}

func TestCaptureMatchesTruncate(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, size := range []int{0, 1, 99, 100, 101, 102, 150, 250, 5000} {
		for _, trailing := range []bool{false, true} {
			var b strings.Builder
			for i := 0; i < size; i++ {
				b.WriteByte(byte('a' + i%26))
			}
			if trailing {
				b.WriteByte('\n')
			}
			stream := b.String()

			for _, limit := range []int{0, 10, 100, 101} {
				c := newCapture(limit)
				rest := stream
				for rest != "" {
					n := 1 + rng.Intn(40)
					if n > len(rest) {
						n = len(rest)
					}
					c.write(rest[:n])
					rest = rest[n:]
				}
				want := truncate(strings.TrimSuffix(stream, "\n"), limit)
				assert.Equal(t, want, c.String(), "size=%d trailing=%v limit=%d", size, trailing, limit)
			}
		}
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, quote("it's"))
}
