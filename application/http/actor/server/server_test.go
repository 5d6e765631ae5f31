package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/transport"
	"rawhttp/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

const addr = "server"

type ServerTestSuite struct {
	suite.Suite

	clock     *clock.Mock
	transport *pipe.Transport
	server    *Server
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.transport = pipe.NewTransport(s.clock, 0)

	lis, err := s.transport.Listen(addr)
	s.Require().NoError(err)

	opts := DefaultOptions()
	opts.KeepAlive.Max = 3
	opts.Limits.MaxBodyBytes = 16

	pipeline := router.NewBuilder().
		Get("/search", func(_ *router.HandleContext, req *http.Request) *http.Response {
			return http.Text(200, "You searched for: "+req.Query["q"])
		}).
		Post("/echo", func(_ *router.HandleContext, req *http.Request) *http.Response {
			return http.Text(200, string(req.Body))
		}).
		Get("/panic", func(_ *router.HandleContext, _ *http.Request) *http.Response {
			panic("boom")
		}).
		Get("/bye", func(_ *router.HandleContext, _ *http.Request) *http.Response {
			res := http.Text(200, "bye")
			res.Header.Set("Connection", "close")
			return res
		}).
		Build(router.Options{Logger: slog.New(slog.DiscardHandler), Production: true})

	s.server = New(lis, slog.New(slog.DiscardHandler), s.clock, pipeline, opts)
	s.server.Start()
}

func (s *ServerTestSuite) TearDownTest() {
	s.NoError(s.server.Close())
	goleak.VerifyNone(s.T())
}

type response struct {
	status int
	header map[string]string
	body   string
}

func (s *ServerTestSuite) dial() (transport.Conn, *bufio.Reader) {
	conn, err := s.transport.Dial(context.Background(), addr)
	s.Require().NoError(err)
	return conn, bufio.NewReader(conn)
}

func (s *ServerTestSuite) send(conn transport.Conn, raw string) {
	_, err := conn.Write([]byte(raw))
	s.Require().NoError(err)
}

// receive reads one response. A response to HEAD carries no body.
func (s *ServerTestSuite) receive(r *bufio.Reader, head bool) response {
	line, err := r.ReadString('\n')
	s.Require().NoError(err)

	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	s.Require().Len(parts, 3)
	s.Require().Equal("HTTP/1.1", parts[0])

	code, err := strconv.Atoi(parts[1])
	s.Require().NoError(err)

	res := response{status: code, header: make(map[string]string)}
	for {
		line, err := r.ReadString('\n')
		s.Require().NoError(err)

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ": ")
		res.header[strings.ToLower(name)] = value
	}

	if head || code < 200 {
		return res
	}

	length, err := strconv.Atoi(res.header["content-length"])
	s.Require().NoError(err)

	body := make([]byte, length)
	_, err = io.ReadFull(r, body)
	s.Require().NoError(err)
	res.body = string(body)

	return res
}

func (s *ServerTestSuite) requireClosed(r *bufio.Reader) {
	_, err := r.ReadByte()
	s.Require().True(errors.Is(err, transport.ErrConnClosed), "got %v", err)
}

func (s *ServerTestSuite) TestGet() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "GET /search?q=go HTTP/1.1\r\nHost: localhost\r\n\r\n")

	res := s.receive(r, false)
	s.Equal(200, res.status)
	s.Equal("You searched for: go", res.body)
	s.Equal("keep-alive", res.header["connection"])
	s.Equal("timeout=5, max=3", res.header["keep-alive"])
	s.Equal("Thu, 01 Jan 1970 00:00:00 GMT", res.header["date"])
}

func (s *ServerTestSuite) TestPipelining() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, ""+
		"GET /search?q=a HTTP/1.1\r\nHost: x\r\n\r\n"+
		"POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"+
		"GET /search?q=c HTTP/1.1\r\nHost: x\r\n\r\n")

	s.Equal("You searched for: a", s.receive(r, false).body)
	s.Equal("hello", s.receive(r, false).body)

	last := s.receive(r, false)
	s.Equal("You searched for: c", last.body)
	// Third request reaches the keep-alive limit.
	s.Equal("close", last.header["connection"])
	s.requireClosed(r)
}

func (s *ServerTestSuite) TestSplitRequest() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-")
	s.send(conn, "Length: 4\r\n\r\nWi")
	s.send(conn, "ki")

	res := s.receive(r, false)
	s.Equal(200, res.status)
	s.Equal("Wiki", res.body)
}

func (s *ServerTestSuite) TestChunkedRequest() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n"+
		"4\r\nWiki\r\n0\r\n\r\n")

	res := s.receive(r, false)
	s.Equal(200, res.status)
	s.Equal("Wiki", res.body)
}

func (s *ServerTestSuite) TestPayloadTooLarge() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 17\r\n\r\n")

	res := s.receive(r, false)
	s.Equal(413, res.status)
	s.Equal("close", res.header["connection"])
	s.requireClosed(r)
}

func (s *ServerTestSuite) TestMalformedRequest() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "NOT A REQUEST LINE\r\n\r\n")

	res := s.receive(r, false)
	s.Equal(400, res.status)
	s.Equal("Bad Request", res.body)
	s.requireClosed(r)
}

func (s *ServerTestSuite) TestChunkedFaultCloses() {
	const head = "POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n"

	testcases := []struct {
		desc   string
		body   string
		status int
	}{
		{
			desc:   "cumulative size over limit",
			body:   "10\r\n" + strings.Repeat("a", 16) + "\r\n1\r\nx\r\n",
			status: 413,
		},
		{
			desc:   "bad chunk terminator",
			body:   "4\r\nWikiXX",
			status: 400,
		},
		{
			desc:   "invalid chunk size",
			body:   "zz\r\n",
			status: 400,
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			conn, r := s.dial()
			defer conn.Close()

			s.send(conn, head+tc.body)

			res := s.receive(r, false)
			s.Equal(tc.status, res.status)
			s.Equal("close", res.header["connection"])
			s.requireClosed(r)
		})
	}
}

func (s *ServerTestSuite) TestExpectContinue() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "POST /echo HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 4\r\n\r\n")

	interim := s.receive(r, false)
	s.Equal(100, interim.status)
	s.Empty(interim.header)

	s.send(conn, "Wiki")

	res := s.receive(r, false)
	s.Equal(200, res.status)
	s.Equal("Wiki", res.body)
}

func (s *ServerTestSuite) TestPanicKeepsConnection() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "GET /panic HTTP/1.1\r\nHost: x\r\n\r\n")
	res := s.receive(r, false)
	s.Equal(500, res.status)
	s.Equal("keep-alive", res.header["connection"])

	s.send(conn, "GET /search?q=after HTTP/1.1\r\nHost: x\r\n\r\n")
	s.Equal("You searched for: after", s.receive(r, false).body)
}

func (s *ServerTestSuite) TestHead() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "HEAD /search?q=go HTTP/1.1\r\nHost: x\r\n\r\n")
	res := s.receive(r, true)
	s.Equal(200, res.status)
	s.Equal(strconv.Itoa(len("You searched for: go")), res.header["content-length"])

	// Nothing but the next response follows the head.
	s.send(conn, "GET /search?q=go HTTP/1.1\r\nHost: x\r\n\r\n")
	s.Equal("You searched for: go", s.receive(r, false).body)
}

func (s *ServerTestSuite) TestOptions() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "OPTIONS /search HTTP/1.1\r\nHost: x\r\n\r\n")
	res := s.receive(r, true)
	s.Equal(204, res.status)
	s.Equal("GET, HEAD, OPTIONS", res.header["allow"])
}

func (s *ServerTestSuite) TestConnectionClose() {
	testcases := []struct {
		desc string
		raw  string
	}{
		{desc: "client asks to close", raw: "GET /search HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"},
		{desc: "HTTP/1.0 without keep-alive", raw: "GET /search HTTP/1.0\r\n\r\n"},
		{desc: "handler asks to close", raw: "GET /bye HTTP/1.1\r\nHost: x\r\n\r\n"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			conn, r := s.dial()
			defer conn.Close()

			s.send(conn, tc.raw)

			res := s.receive(r, false)
			s.Equal(200, res.status)
			s.Equal("close", res.header["connection"])
			s.NotContains(res.header, "keep-alive")
			s.requireClosed(r)
		})
	}
}

func (s *ServerTestSuite) TestHTTP10KeepAlive() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "GET /search?q=a HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	s.Equal("keep-alive", s.receive(r, false).header["connection"])

	s.send(conn, "GET /search?q=b HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	s.Equal("You searched for: b", s.receive(r, false).body)
}

func (s *ServerTestSuite) TestIdleTimeout() {
	conn, r := s.dial()
	defer conn.Close()

	closed := make(chan error, 1)
	go func() {
		_, err := r.ReadByte()
		closed <- err
	}()

	var err error
	s.Eventually(func() bool {
		s.clock.Add(time.Second)
		select {
		case err = <-closed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	s.True(errors.Is(err, transport.ErrConnClosed))
	s.Eventually(func() bool { return s.server.Sessions() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *ServerTestSuite) TestIdleTimeoutMidRequest() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\nabc")

	closed := make(chan error, 1)
	go func() {
		_, err := r.ReadByte()
		closed <- err
	}()

	s.Eventually(func() bool {
		s.clock.Add(time.Second)
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *ServerTestSuite) TestCloseEndsSessions() {
	conn, r := s.dial()
	defer conn.Close()

	s.send(conn, "GET /search HTTP/1.1\r\nHost: x\r\n\r\n")
	s.receive(r, false)
	s.Equal(1, s.server.Sessions())

	s.Require().NoError(s.server.Close())
	s.Zero(s.server.Sessions())
	s.requireClosed(r)

	// Dialing a closed server is refused.
	_, err := s.transport.Dial(context.Background(), addr)
	s.ErrorIs(err, transport.ErrConnRefused)
}

func TestCloseBeforeStart(t *testing.T) {
	tr := pipe.NewTransport(clock.NewMock(), 0)
	lis, err := tr.Listen(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	srv := New(lis, slog.New(slog.DiscardHandler), clock.NewMock(), router.NewBuilder().Build(router.Options{}), DefaultOptions())
	if err := srv.Close(); err == nil {
		t.Fatal("expected error closing a server that never started")
	}
}
