// Package modem drives an A9G GSM/GPRS/GNSS module over its AT command
// UART.
//
// One goroutine (Run) owns reads from the port. Every byte is copied to an
// optional NMEA sink so GNSS output interleaved with command responses still
// reaches the fix parser, and complete lines are handed to whichever command
// is currently waiting. Commands are serialized.
package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrTimeout       = errors.New("modem: timeout")
	ErrCommandFailed = errors.New("modem: command failed")
	ErrClosed        = errors.New("modem: reader stopped")
)

type Options struct {
	CommandTimeout time.Duration
	ResetTimeout   time.Duration
	// AttachTimeout bounds each network attach step in ConnInit.
	AttachTimeout time.Duration
	SMSTimeout    time.Duration
	HTTPTimeout   time.Duration
	// ConnCacheTTL is how long an IsConnected answer is reused.
	ConnCacheTTL time.Duration

	// NMEASink receives every byte read from the port.
	NMEASink io.Writer
	Clock    clock.Clock
}

func (o *Options) setDefaults() {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 200 * time.Millisecond
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = time.Second
	}
	if o.AttachTimeout <= 0 {
		o.AttachTimeout = 100 * time.Millisecond
	}
	if o.SMSTimeout <= 0 {
		o.SMSTimeout = 10 * time.Second
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 10 * time.Second
	}
	if o.ConnCacheTTL <= 0 {
		o.ConnCacheTTL = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

type Modem struct {
	port io.ReadWriter
	log  *zap.SugaredLogger
	opts Options
	clk  clock.Clock

	// cmdMu serializes command exchanges on the wire.
	cmdMu sync.Mutex

	wmu    sync.Mutex
	waiter chan string

	connMu        sync.Mutex
	connected     bool
	connCheckedAt time.Time
	connChecked   bool

	done    chan struct{}
	runOnce sync.Once
}

func New(port io.ReadWriter, logger *zap.SugaredLogger, opts Options) *Modem {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts.setDefaults()
	return &Modem{
		port: port,
		log:  logger.Named("modem"),
		opts: opts,
		clk:  opts.Clock,
		done: make(chan struct{}),
	}
}

// Run reads the port until it fails or ctx is cancelled. Cancelling ctx does
// not interrupt a blocked read; close the port for that.
func (m *Modem) Run(ctx context.Context) error {
	var err error
	m.runOnce.Do(func() {
		defer close(m.done)
		err = m.run(ctx)
	})
	return err
}

func (m *Modem) run(ctx context.Context) error {
	var r io.Reader = m.port
	if m.opts.NMEASink != nil {
		r = io.TeeReader(m.port, sinkWriter{m.opts.NMEASink})
	}
	sc := bufio.NewScanner(r)
	sc.Split(Splitter)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Text()
		if isNMEA(line) {
			continue
		}
		if Classify(line) == TypeURC {
			m.log.Debugw("urc", "line", line)
		}
		m.dispatch(line)
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("modem: read: %w", err)
	}
	return io.EOF
}

// sinkWriter never fails so a bad sink cannot stop the reader.
type sinkWriter struct{ w io.Writer }

func (s sinkWriter) Write(p []byte) (int, error) {
	_, _ = s.w.Write(p)
	return len(p), nil
}

func (m *Modem) dispatch(line string) {
	m.wmu.Lock()
	w := m.waiter
	m.wmu.Unlock()
	if w == nil {
		return
	}
	select {
	case w <- line:
	default:
		m.log.Warnw("response dropped", "line", line)
	}
}

func (m *Modem) setWaiter(ch chan string) {
	m.wmu.Lock()
	m.waiter = ch
	m.wmu.Unlock()
}

// Command sends cmd followed by CRLF and waits up to timeout for a line
// containing expect. It returns every line seen, newline separated. An error
// result fails fast with ErrCommandFailed unless expect itself names an
// error. The echoed command is ignored.
func (m *Modem) Command(ctx context.Context, cmd, expect string, timeout time.Duration) (string, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	return m.exchangeLocked(ctx, cmd+CRLF, cmd, expect, timeout)
}

func (m *Modem) exchangeLocked(ctx context.Context, payload, echo, expect string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = m.opts.CommandTimeout
	}
	ch := make(chan string, 32)
	m.setWaiter(ch)
	defer m.setWaiter(nil)

	m.log.Debugw("command", "cmd", echo)
	if _, err := io.WriteString(m.port, payload); err != nil {
		return "", fmt.Errorf("modem: write %q: %w", echo, err)
	}

	timer := m.clk.Timer(timeout)
	defer timer.Stop()

	expectErr := isError(expect)
	var lines []string
	for {
		select {
		case line := <-ch:
			if line == echo {
				continue
			}
			lines = append(lines, line)
			if strings.Contains(line, expect) {
				return strings.Join(lines, "\n"), nil
			}
			if !expectErr && isError(line) {
				return strings.Join(lines, "\n"), fmt.Errorf("%w: %s: %s", ErrCommandFailed, echo, line)
			}
		case <-timer.C:
			return strings.Join(lines, "\n"), fmt.Errorf("%w: %s (expected %q)", ErrTimeout, echo, expect)
		case <-ctx.Done():
			return strings.Join(lines, "\n"), ctx.Err()
		case <-m.done:
			return strings.Join(lines, "\n"), ErrClosed
		}
	}
}

// Reset sends ATZ. It doubles as the liveness probe during boot.
func (m *Modem) Reset(ctx context.Context) error {
	_, err := m.Command(ctx, "ATZ", OK, m.opts.ResetTimeout)
	return err
}

// WaitReady retries Reset until the modem answers or boot elapses. progress,
// when non-nil, is called after every failed attempt with the time spent so
// far.
func (m *Modem) WaitReady(ctx context.Context, boot time.Duration, progress func(elapsed time.Duration)) error {
	start := m.clk.Now()
	for {
		err := m.Reset(ctx)
		if err == nil {
			m.log.Infow("modem ready", "after", m.clk.Since(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		elapsed := m.clk.Since(start)
		if elapsed >= boot {
			return fmt.Errorf("modem: not ready after %s: %w", boot, err)
		}
		if progress != nil {
			progress(elapsed)
		}
		if !errors.Is(err, ErrTimeout) {
			// ERROR answers come back instantly; pace the retries.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.clk.After(m.opts.ResetTimeout):
			}
		}
	}
}

func (m *Modem) GPSEnable(ctx context.Context) error {
	_, err := m.Command(ctx, "AT+GPS=1", OK, 0)
	return err
}

// GPSReadInterval makes the modem print NMEA every interval (whole seconds,
// at least one).
func (m *Modem) GPSReadInterval(ctx context.Context, interval time.Duration) error {
	secs := int(interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	_, err := m.Command(ctx, fmt.Sprintf("AT+GPSRD=%d", secs), OK, 0)
	return err
}

// ConnInit selects SMS text mode, attaches to the packet network and
// activates the PDP context for apn. Every step is attempted; failures are
// logged and returned together.
func (m *Modem) ConnInit(ctx context.Context, apn string) error {
	var errs error
	for _, cmd := range []string{
		"AT+CMGF=1",
		"AT+CGATT=1",
		fmt.Sprintf("AT+CGDCONT=1,\"IP\",\"%s\"", apn),
		"AT+CGACT=1,1",
	} {
		if _, err := m.Command(ctx, cmd, OK, m.opts.AttachTimeout); err != nil {
			m.log.Warnw("network setup step failed", "cmd", cmd, "error", err)
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				return errs
			}
		}
	}
	if errs == nil {
		m.log.Infow("network attached", "apn", apn)
	}
	return errs
}

// IsConnected asks AT+CIPSTATUS? and reports whether the answer contains
// INITIAL. The answer is cached for ConnCacheTTL so the display loop can
// call it every refresh.
func (m *Modem) IsConnected(ctx context.Context) bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	now := m.clk.Now()
	if m.connChecked && now.Sub(m.connCheckedAt) <= m.opts.ConnCacheTTL {
		return m.connected
	}
	_, err := m.Command(ctx, "AT+CIPSTATUS?", "INITIAL", m.opts.CommandTimeout)
	m.connected = err == nil
	m.connChecked = true
	m.connCheckedAt = now
	return m.connected
}

// SendSMS sends text to dest in text mode: AT+CMGS, wait for the prompt,
// then the body terminated by Ctrl-Z.
func (m *Modem) SendSMS(ctx context.Context, dest, text string) error {
	if strings.ContainsAny(dest, "\"\r\n") {
		return fmt.Errorf("modem: invalid sms destination %q", dest)
	}
	body := strings.ReplaceAll(text, CtrlZ, "")

	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	if _, err := m.exchangeLocked(ctx, "AT+CMGF=1"+CRLF, "AT+CMGF=1", OK, m.opts.CommandTimeout); err != nil {
		return err
	}
	cmgs := fmt.Sprintf("AT+CMGS=\"%s\"", dest)
	if _, err := m.exchangeLocked(ctx, cmgs+CRLF, cmgs, strings.TrimSpace(Prompt), m.opts.CommandTimeout); err != nil {
		return err
	}
	if _, err := m.exchangeLocked(ctx, body+CtrlZ, body, OK, m.opts.SMSTimeout); err != nil {
		return err
	}
	m.log.Infow("sms sent", "dest", dest, "bytes", len(body))
	return nil
}

// HTTPGet issues AT+HTTPGET and returns the modem output up to OK.
func (m *Modem) HTTPGet(ctx context.Context, url string) (string, error) {
	if strings.ContainsAny(url, "\"\r\n") {
		return "", fmt.Errorf("modem: invalid url %q", url)
	}
	return m.Command(ctx, fmt.Sprintf("AT+HTTPGET=\"%s\"", url), OK, m.opts.HTTPTimeout)
}
