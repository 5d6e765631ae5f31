// Package test holds conformance suites for [transport.Conn] implementations.
package test

import (
	"bytes"
	"sync"
	"time"

	"rawhttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// ConnTestSuite runs against a connected pair C1 and C2,
// which the embedding suite sets after calling SetupTest.
type ConnTestSuite struct {
	suite.Suite
	C1, C2 transport.Conn
	Clock  clock.Clock
}

func (s *ConnTestSuite) SetupTest() {
	s.Clock = clock.New()
}

func (s *ConnTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.C1.Close()
	s.C2.Close()
}

// readN reads from c until n bytes arrived or an error occurs.
func (s *ConnTestSuite) readN(c transport.Conn, n int) []byte {
	out := make([]byte, 0, n)
	buf := make([]byte, 7)
	for len(out) < n {
		m, err := c.Read(buf[:min(len(buf), n-len(out))])
		s.Require().NoError(err)
		out = append(out, buf[:m]...)
	}
	return out
}

func (s *ConnTestSuite) TestInOrderDelivery() {
	fragments := [][]byte{
		[]byte("GET / HTTP/1.1\r\n"),
		[]byte("Host: x\r\n"),
		[]byte("\r\n"),
	}
	expected := bytes.Join(fragments, nil)

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, f := range fragments {
			n, err := s.C1.Write(f)
			s.NoError(err)
			s.Equal(len(f), n)
		}
	}()

	s.Equal(expected, s.readN(s.C2, len(expected)))
}

func (s *ConnTestSuite) TestConcurrentWritesDontInterleave() {
	const (
		writers   = 8
		blockSize = 64
	)

	var wg sync.WaitGroup
	defer wg.Wait()

	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block := bytes.Repeat([]byte{byte('a' + i)}, blockSize)
			_, err := s.C1.Write(block)
			s.NoError(err)
		}()
	}

	got := s.readN(s.C2, writers*blockSize)

	seen := make(map[byte]bool)
	for off := 0; off < len(got); off += blockSize {
		block := got[off : off+blockSize]
		s.Equal(bytes.Repeat(block[:1], blockSize), block, "block at %d is interleaved", off)
		seen[block[0]] = true
	}
	s.Len(seen, writers)
}

func (s *ConnTestSuite) TestCloseUnblocksRead() {
	errs := make(chan error, 1)
	go func() {
		_, err := s.C1.Read(make([]byte, 1))
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.C1.Close())

	select {
	case err := <-errs:
		s.ErrorIs(err, transport.ErrConnClosed)
	case <-time.After(time.Second):
		s.FailNow("read was not unblocked by close")
	}
}

func (s *ConnTestSuite) TestPeerCloseAfterWrite() {
	data := []byte("HTTP/1.1 400\r\n\r\n")

	_, err := s.C2.Write(data)
	s.Require().NoError(err)
	s.Require().NoError(s.C2.Close())

	// Bytes written before the close are still delivered.
	s.Equal(data, s.readN(s.C1, len(data)))

	_, err = s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestUseAfterClose() {
	s.Require().NoError(s.C1.Close())

	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)

	n, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)
}

func (s *ConnTestSuite) TestPastDeadLine() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)

	s.C1.SetWriteDeadLine(s.Clock.Now().Add(-time.Second))
	n, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestDeadLineUnblocksRead() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(30 * time.Millisecond))

	errs := make(chan error, 1)
	go func() {
		_, err := s.C1.Read(make([]byte, 1))
		errs <- err
	}()

	select {
	case err := <-errs:
		s.ErrorIs(err, transport.ErrDeadLineExceeded)
	case <-time.After(time.Second):
		s.FailNow("read did not time out")
	}
}

func (s *ConnTestSuite) TestDeadLineCleared() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	s.C1.SetReadDeadLine(time.Time{})

	data := []byte("ok")
	_, err := s.C2.Write(data)
	s.Require().NoError(err)

	s.Equal(data, s.readN(s.C1, len(data)))
}

func (s *ConnTestSuite) TestAddr() {
	s.Equal(s.C1.LocalAddr().String(), s.C2.RemoteAddr().String())
	s.Equal(s.C2.LocalAddr().String(), s.C1.RemoteAddr().String())
	s.Equal(s.C1.LocalAddr().Network(), s.C2.LocalAddr().Network())
}
