package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chess-arena/pkg/agentproto"
)

var (
	// ErrLoadFailed wraps every way an agent can fail its startup handshake.
	ErrLoadFailed = errors.New("agent load failed")
	// ErrAgentFault marks a failure the agent itself reported or caused
	// (error message, malformed frame, empty move).
	ErrAgentFault = errors.New("agent fault")
	// ErrChannelClosed is returned once the agent process is gone.
	ErrChannelClosed = errors.New("agent channel closed")
)

// DefaultLoadTimeout bounds the startup handshake.
const DefaultLoadTimeout = 30 * time.Second

const lineBuffer = 16

type Config struct {
	// Identity names the competitor in logs.
	Identity string
	// Command is the agent executable; Args are passed through.
	Command string
	Args    []string
	// Resource is the source locator echoed in the load message.
	Resource    string
	LoadTimeout time.Duration
	Logger      *zap.Logger
}

// Channel owns one agent subprocess and the message traffic with it. The
// agent shares no memory with the arena; everything crosses stdin/stdout as
// JSON lines (pkg/agentproto). Load and RequestMove are serialized; a single
// reader goroutine pumps stdout for the channel's whole lifetime so that a
// reply arriving after its request was abandoned is drained, never
// misdelivered.
type Channel struct {
	identity    string
	resource    string
	loadTimeout time.Duration
	logger      *zap.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	quit  chan struct{}
	dead  chan struct{}

	sendMu   sync.Mutex
	callMu   sync.Mutex
	termOnce sync.Once
}

// Spawn starts the agent process and begins pumping its stdout. It does not
// wait for the handshake; call Load next.
func Spawn(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("agent command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start agent: %w", err)
	}

	c := &Channel{
		identity:    cfg.Identity,
		resource:    cfg.Resource,
		loadTimeout: loadTimeout,
		logger:      logger,
		cmd:         cmd,
		stdin:       stdin,
		lines:       make(chan string, lineBuffer),
		quit:        make(chan struct{}),
		dead:        make(chan struct{}),
	}
	go c.pump(bufio.NewReader(stdoutPipe))
	return c, nil
}

func (c *Channel) Identity() string { return c.identity }

// Load runs the startup handshake: send the load message, wait for ready or
// load_error within the load timeout.
func (c *Channel) Load(ctx context.Context) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	c.drain()
	if err := c.send(agentproto.Message{Type: agentproto.TypeLoad, Resource: c.resource}); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	for {
		msg, err := c.read(loadCtx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		switch msg.Type {
		case agentproto.TypeReady:
			c.logger.Info("agent_ready", zap.String("identity", c.identity))
			return nil
		case agentproto.TypeLoadError:
			return fmt.Errorf("%w: %s", ErrLoadFailed, msg.Message)
		default:
			// startup chatter, keep waiting
		}
	}
}

// RequestMove asks the agent for a move in position (FEN) under limit. The
// limit is advisory for the agent; enforcement belongs to the caller via
// ctx.
func (c *Channel) RequestMove(ctx context.Context, position string, limit time.Duration) (string, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.drain()
	req := agentproto.Message{
		Type:        agentproto.TypeMoveRequest,
		Position:    position,
		TimeLimitMs: limit.Milliseconds(),
	}
	if err := c.send(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAgentFault, err)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return "", err
		}
		switch msg.Type {
		case agentproto.TypeMove:
			move := strings.TrimSpace(msg.Move)
			if move == "" {
				return "", fmt.Errorf("%w: empty move", ErrAgentFault)
			}
			return move, nil
		case agentproto.TypeAgentError:
			return "", fmt.Errorf("%w: %s", ErrAgentFault, msg.Message)
		default:
			// unrelated chatter between request and reply
		}
	}
}

// Terminate kills the agent process and abandons in-flight work. It never
// blocks; reaping happens in the background. Safe to call more than once.
func (c *Channel) Terminate() {
	c.termOnce.Do(func() {
		close(c.quit)
		if c.stdin != nil {
			c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		if c.cmd != nil {
			go func() { _ = c.cmd.Wait() }()
		}
		c.logger.Info("agent_terminated", zap.String("identity", c.identity))
	})
}

func (c *Channel) pump(r *bufio.Reader) {
	defer close(c.dead)
	for {
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			select {
			case c.lines <- trimmed:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Channel) send(msg agentproto.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err = io.WriteString(c.stdin, string(raw)+"\n")
	return err
}

func (c *Channel) read(ctx context.Context) (agentproto.Message, error) {
	// Prefer buffered lines over the dead signal; the process may have
	// answered and exited.
	var line string
	select {
	case line = <-c.lines:
	default:
		select {
		case line = <-c.lines:
		case <-ctx.Done():
			return agentproto.Message{}, ctx.Err()
		case <-c.dead:
			return agentproto.Message{}, ErrChannelClosed
		}
	}
	var msg agentproto.Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return agentproto.Message{}, fmt.Errorf("%w: bad frame: %v", ErrAgentFault, err)
	}
	return msg, nil
}

// drain discards replies left over from a superseded request.
func (c *Channel) drain() {
	for {
		select {
		case <-c.lines:
		default:
			return
		}
	}
}
