package test

import (
	"time"

	"rawhttp/transport"
)

// BufferedConnTestSuite adds cases for conns with bounded buffers to [ConnTestSuite].
// C1 and C2 must implement [transport.BufferedConn].
type BufferedConnTestSuite struct {
	ConnTestSuite
}

func (s *BufferedConnTestSuite) TestWriteFitsBuffer() {
	size := int(s.C1.(transport.BufferedConn).WriteBufSize())

	// Nobody reads, yet a write of the buffer size returns.
	n, err := s.C1.Write(make([]byte, size))
	s.Require().NoError(err)
	s.Equal(size, n)

	s.Equal(size, len(s.readN(s.C2, size)))
}

func (s *BufferedConnTestSuite) TestWriteBlocksUntilRead() {
	size := int(s.C1.(transport.BufferedConn).WriteBufSize())
	input := make([]byte, size+1)

	done := make(chan int, 1)
	go func() {
		n, err := s.C1.Write(input)
		s.NoError(err)
		done <- n
	}()

	select {
	case <-done:
		s.FailNow("write returned before the buffer was drained")
	case <-time.After(50 * time.Millisecond):
	}

	s.readN(s.C2, size+1)
	s.Equal(size+1, <-done)
}

func (s *BufferedConnTestSuite) TestWriteDeadLineWhileBlocked() {
	size := int(s.C1.(transport.BufferedConn).WriteBufSize())

	s.C1.SetWriteDeadLine(s.Clock.Now().Add(30 * time.Millisecond))

	// The part that fits is reported as written.
	n, err := s.C1.Write(make([]byte, size+1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Equal(size, n)
}

func (s *BufferedConnTestSuite) TestBufferedBytesSurviveClose() {
	size := int(s.C2.(transport.BufferedConn).WriteBufSize())

	_, err := s.C2.Write(make([]byte, size))
	s.Require().NoError(err)
	s.Require().NoError(s.C2.Close())

	s.Equal(size, len(s.readN(s.C1, size)))

	_, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrConnClosed)
}
