// Package httpengine is a non-blocking, single-threaded HTTP/1.1 GET
// fetcher. One process-wide Engine multiplexes every in-flight request over
// a single epoll instance; there is no worker pool, no goroutine per
// request, and no lock — the only thread ever touching an Engine's state is
// whatever goroutine calls Dispatch.
//
// Each request moves through the stages Init -> Conn -> Send -> Recv, ending
// in exactly one terminal callback invocation carrying either Succ and a
// body, or one of the failure statuses below. The engine itself never
// queues a request that cannot get a socket (EMFILE/ENFILE): it reports
// StatusFdLimit synchronously and leaves retry policy to the caller.
package httpengine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/sys/unix"
)

var chardetDetector = chardet.NewTextDetector()

// Status is the terminal (or FdLimit) outcome of a request.
type Status int

const (
	StatusSucc Status = iota
	StatusFdLimit
	StatusSocketErr
	StatusConnErr
	StatusConnTimeout
	StatusBadSockOpt
	StatusSendErr
	StatusRecvErr
	StatusEventNewErr
	StatusOutOfMem
)

func (s Status) String() string {
	switch s {
	case StatusSucc:
		return "succ"
	case StatusFdLimit:
		return "fd-limit"
	case StatusSocketErr:
		return "socket-err"
	case StatusConnErr:
		return "conn-err"
	case StatusConnTimeout:
		return "conn-timeout"
	case StatusBadSockOpt:
		return "bad-sockopt"
	case StatusSendErr:
		return "send-err"
	case StatusRecvErr:
		return "recv-err"
	case StatusEventNewErr:
		return "event-new-err"
	case StatusOutOfMem:
		return "out-of-mem"
	default:
		return "unknown"
	}
}

// Callback is invoked exactly once per Request call, on a terminal outcome.
// body is non-nil only when status is StatusSucc. It is a typed closure,
// not an opaque context pointer: callers close over whatever continuation
// state they need directly.
type Callback func(url string, status Status, body []byte)

// Config tunes engine-wide defaults. A zero Config is valid and uses the
// package defaults below.
type Config struct {
	// ConnTimeout bounds how long the Conn stage waits for a connection to
	// complete before failing with StatusConnTimeout.
	ConnTimeout time.Duration
	// MaxBodyBytes is the ceiling on an announced Content-Length; a response
	// announcing a larger one fails with StatusOutOfMem. A response without
	// a Content-Length header is not bounded by it.
	MaxBodyBytes int64
	// Resolver resolves hostnames to addresses. Defaults to
	// net.DefaultResolver. Exposed so tests can point lookups at a fixed
	// loopback address without touching the system resolver.
	Resolver *net.Resolver
}

const (
	DefaultConnTimeout  = 5 * time.Second
	DefaultMaxBodyBytes = 8 * 1024 * 1024
	recvChunkSize       = 64
)

const getTemplate = "GET %s HTTP/1.1\r\n" +
	"Host: %s\r\n" +
	"User-Agent: Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/70.0.3538.102 Safari/537.36\r\n" +
	"Accept: text/html,application/xhtml+xml,application/xml\r\n\r\n"

// Engine owns one epoll instance and every in-flight request state. It is
// not safe for concurrent use; the reference crawl controller only ever
// drives it from one goroutine.
type Engine struct {
	epfd   int
	cfg    Config
	states map[int]*requestState
	closed bool
}

// New creates an Engine and its epoll instance.
func New(cfg Config) (*Engine, error) {
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = DefaultConnTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("httpengine: epoll_create1: %w", err)
	}
	return &Engine{
		epfd:   epfd,
		cfg:    cfg,
		states: make(map[int]*requestState),
	}, nil
}

type stage int

const (
	stageInit stage = iota
	stageConn
	stageSend
	stageRecv
)

type requestState struct {
	url          string
	host         string // authority, possibly "host:port"
	cb           Callback
	fd           int
	stage        stage
	connDeadline time.Time
	sendBuf      []byte
	sent         int
	recvBuf      []byte
	contentLen   int // -1 until a Content-Length header is observed
}

// Request initiates one HTTP/1.1 GET against url (canonical "host/path"
// form, optionally carrying an explicit port in the host for tests that
// target a loopback listener). cb fires exactly once: synchronously, before
// Request returns, when the request fails before it is registered with the
// reactor (StatusFdLimit, StatusSocketErr, StatusConnErr from name
// resolution or connect, StatusEventNewErr), or later from within Dispatch
// for every other outcome.
func (e *Engine) Request(url string, cb Callback) {
	host, _ := splitURL(url)
	hostOnly, port := splitHostPort(host)

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			cb(url, StatusFdLimit, nil)
			return
		}
		cb(url, StatusSocketErr, nil)
		return
	}

	addr, err := e.resolve(hostOnly)
	if err != nil {
		_ = unix.Close(fd)
		cb(url, StatusConnErr, nil)
		return
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], addr.To4())

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS && err != unix.EINTR {
		_ = unix.Close(fd)
		cb(url, StatusConnErr, nil)
		return
	}

	st := &requestState{
		url:          url,
		host:         host,
		cb:           cb,
		fd:           fd,
		stage:        stageConn,
		connDeadline: time.Now().Add(e.cfg.ConnTimeout),
	}
	e.states[fd] = st

	if regErr := e.armOneShot(fd, unix.EPOLLOUT, true); regErr != nil {
		delete(e.states, fd)
		_ = unix.Close(fd)
		cb(url, StatusEventNewErr, nil)
		return
	}
}

func (e *Engine) resolve(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := e.cfg.Resolver.LookupIPAddr(context.Background(), host)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("httpengine: resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("httpengine: no A record for %s", host)
}

func (e *Engine) armOneShot(fd int, events uint32, add bool) error {
	ev := &unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if add {
		op = unix.EPOLL_CTL_ADD
	}
	return unix.EpollCtl(e.epfd, op, fd, ev)
}

// Dispatch runs the reactor until every in-flight request has reached a
// terminal state, then returns; it returns nil only once no request state
// remains registered. It does not release the reactor; Close does.
func (e *Engine) Dispatch() error {
	for len(e.states) > 0 {
		timeoutMs := e.nextTimeoutMillis()

		events := make([]unix.EpollEvent, 64)
		n, err := unix.EpollWait(e.epfd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("httpengine: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			st, ok := e.states[fd]
			if !ok {
				continue
			}
			e.handle(st)
		}

		e.sweepConnTimeouts()
	}
	return nil
}

// Close releases the reactor. Dispatch must have already drained every
// request; Close does not forcibly terminate in-flight requests.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return unix.Close(e.epfd)
}

func (e *Engine) nextTimeoutMillis() int {
	const noDeadline = 1000
	best := -1
	now := time.Now()
	for _, st := range e.states {
		if st.stage != stageConn {
			continue
		}
		remaining := st.connDeadline.Sub(now)
		ms := int(remaining / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		if best < 0 || ms < best {
			best = ms
		}
	}
	if best < 0 {
		return noDeadline
	}
	return best
}

func (e *Engine) sweepConnTimeouts() {
	now := time.Now()
	for _, st := range e.states {
		if st.stage == stageConn && now.After(st.connDeadline) {
			e.fail(st, StatusConnTimeout)
		}
	}
}

func (e *Engine) handle(st *requestState) {
	switch st.stage {
	case stageConn:
		e.handleConn(st)
	case stageSend:
		e.handleSend(st)
	case stageRecv:
		e.handleRecv(st)
	}
}

func (e *Engine) handleConn(st *requestState) {
	errno, err := unix.GetsockoptInt(st.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		e.fail(st, StatusBadSockOpt)
		return
	}
	if errno != 0 {
		e.fail(st, StatusBadSockOpt)
		return
	}

	_, path := splitURL(st.url)
	st.sendBuf = []byte(fmt.Sprintf(getTemplate, path, st.host))
	st.sent = 0
	st.stage = stageSend

	if err := e.armOneShot(st.fd, unix.EPOLLOUT, false); err != nil {
		e.failEventErr(st)
	}
}

func (e *Engine) handleSend(st *requestState) {
	n, err := unix.Write(st.fd, st.sendBuf[st.sent:])
	if n > 0 {
		st.sent += n
	}
	if err != nil {
		if err == unix.EAGAIN {
			if rearmErr := e.armOneShot(st.fd, unix.EPOLLOUT, false); rearmErr != nil {
				e.failEventErr(st)
			}
			return
		}
		e.fail(st, StatusSendErr)
		return
	}

	if st.sent >= len(st.sendBuf) {
		st.stage = stageRecv
		st.recvBuf = nil
		st.contentLen = -1
		if rearmErr := e.armOneShot(st.fd, unix.EPOLLIN, false); rearmErr != nil {
			e.failEventErr(st)
		}
		return
	}

	if rearmErr := e.armOneShot(st.fd, unix.EPOLLOUT, false); rearmErr != nil {
		e.failEventErr(st)
	}
}

func (e *Engine) handleRecv(st *requestState) {
	buf := make([]byte, recvChunkSize)
	n, err := unix.Read(st.fd, buf)

	if n == 0 && err == nil {
		e.succeed(st)
		return
	}
	if err != nil {
		if err == unix.EAGAIN {
			if rearmErr := e.armOneShot(st.fd, unix.EPOLLIN, false); rearmErr != nil {
				e.failEventErr(st)
			}
			return
		}
		e.fail(st, StatusRecvErr)
		return
	}

	st.recvBuf = append(st.recvBuf, buf[:n]...)

	if cl, ok := parseContentLength(st.recvBuf); ok {
		st.contentLen = cl
	}
	if int64(st.contentLen) > e.cfg.MaxBodyBytes {
		e.fail(st, StatusOutOfMem)
		return
	}

	if sep := bytes.Index(st.recvBuf, []byte("\r\n\r\n")); sep >= 0 {
		bodyLen := len(st.recvBuf) - (sep + 4)
		if st.contentLen >= 0 && bodyLen >= st.contentLen {
			e.succeed(st)
			return
		}
	}

	if rearmErr := e.armOneShot(st.fd, unix.EPOLLIN, false); rearmErr != nil {
		e.failEventErr(st)
	}
}

func (e *Engine) succeed(st *requestState) {
	body := []byte{}
	if sep := bytes.Index(st.recvBuf, []byte("\r\n\r\n")); sep >= 0 {
		body = st.recvBuf[sep+4:]
	}
	logCharset(st.url, body)
	e.terminate(st)
	st.cb(st.url, StatusSucc, body)
}

func (e *Engine) fail(st *requestState, status Status) {
	e.terminate(st)
	st.cb(st.url, status, nil)
}

func (e *Engine) failEventErr(st *requestState) {
	e.fail(st, StatusEventNewErr)
}

func (e *Engine) terminate(st *requestState) {
	delete(e.states, st.fd)
	_ = unix.Shutdown(st.fd, unix.SHUT_RDWR)
	_ = unix.Close(st.fd)
}

func splitURL(url string) (host, path string) {
	i := strings.IndexByte(url, '/')
	if i < 0 {
		return url, "/"
	}
	return url[:i], url[i:]
}

func splitHostPort(host string) (string, int) {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if port, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i], port
		}
	}
	return host, 80
}

func parseContentLength(buf []byte) (int, bool) {
	const hdr = "Content-Length:"
	idx := bytes.Index(buf, []byte(hdr))
	if idx < 0 {
		idx = bytes.Index(buf, []byte("content-length:"))
		if idx < 0 {
			return 0, false
		}
	}
	rest := buf[idx+len(hdr):]
	end := bytes.IndexByte(rest, '\r')
	if end < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(rest[:end])))
	if err != nil {
		return 0, false
	}
	return n, true
}

// logCharset is a diagnostic-only consumer of two independent charset
// detectors; it never influences what bytes are handed to the caller.
func logCharset(url string, body []byte) {
	if len(body) == 0 {
		return
	}
	_, name, ok := charset.DetermineEncoding(body, "")
	guess := "unknown"
	if ok {
		guess = name
	}

	if res, err := chardetDetector.DetectBest(body); err == nil && res.Charset != guess {
		log.Printf("httpengine: %s: charset guess %s disagrees with chardet %s", url, guess, res.Charset)
		return
	}
	log.Printf("httpengine: %s: detected charset %s", url, guess)
}
