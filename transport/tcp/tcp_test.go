package tcp

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rawhttp/transport"
	"rawhttp/transport/test"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type ListenerTestSuite struct {
	suite.Suite

	l *Listener
}

func TestListenerTestSuite(t *testing.T) {
	suite.Run(t, new(ListenerTestSuite))
}

func (s *ListenerTestSuite) SetupTest() {
	l, err := Listen(ListenOptions{Addr: "127.0.0.1:0"})
	s.Require().NoError(err)
	s.l = l
}

func (s *ListenerTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.l.Close()
}

// pair returns a dialed conn and its accepted counterpart.
func (s *ListenerTestSuite) pair(d Dialer) (client, server transport.Conn) {
	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := s.l.Accept(context.Background())
		s.NoError(err)
		accepted <- c
	}()

	client, err := d.Dial(context.Background(), s.l.Addr().String())
	s.Require().NoError(err)
	return client, <-accepted
}

func (s *ListenerTestSuite) TestReadWrite() {
	client, server := s.pair(Dialer{})
	defer client.Close()
	defer server.Close()

	s.Equal(client.LocalAddr().String(), server.RemoteAddr().String())
	s.Equal("tcp", server.LocalAddr().Network())
	s.False(server.(*Conn).Secure())

	_, err := client.Write([]byte("ping"))
	s.Require().NoError(err)

	b := make([]byte, 4)
	n, err := server.Read(b)
	s.Require().NoError(err)
	s.Equal([]byte("ping"), b[:n])
}

func (s *ListenerTestSuite) TestPeerClose() {
	client, server := s.pair(Dialer{})
	defer server.Close()

	s.Require().NoError(client.Close())

	_, err := server.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ListenerTestSuite) TestReadDeadLine() {
	client, server := s.pair(Dialer{})
	defer client.Close()
	defer server.Close()

	server.SetReadDeadLine(time.Now().Add(10 * time.Millisecond))
	_, err := server.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
}

func (s *ListenerTestSuite) TestAcceptCancels() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	conn, err := s.l.Accept(ctx)
	s.Nil(conn)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *ListenerTestSuite) TestAcceptAfterClose() {
	s.Require().NoError(s.l.Close())

	_, err := s.l.Accept(context.Background())
	s.ErrorIs(err, transport.ErrConnListenerClosed)
	s.ErrorIs(s.l.Close(), transport.ErrConnListenerClosed)
}

// ConnTestSuite runs the transport conformance cases over loopback TCP.
type ConnTestSuite struct {
	test.ConnTestSuite
}

func TestConnTestSuite(t *testing.T) {
	suite.Run(t, new(ConnTestSuite))
}

func (s *ConnTestSuite) SetupTest() {
	s.ConnTestSuite.SetupTest()

	l, err := Listen(ListenOptions{Addr: "127.0.0.1:0"})
	s.Require().NoError(err)
	defer l.Close()

	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept(context.Background())
		s.NoError(err)
		accepted <- c
	}()

	s.C1, err = Dialer{}.Dial(context.Background(), l.Addr().String())
	s.Require().NoError(err)
	s.C2 = <-accepted
	s.Require().NotNil(s.C2)
}

func TestListenMaxConns(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := Listen(ListenOptions{Addr: "127.0.0.1:0", MaxConns: 1})
	require.NoError(t, err)
	defer l.Close()

	first, err := Dialer{}.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	accepted, err := l.Accept(context.Background())
	require.NoError(t, err)

	second, err := Dialer{}.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	// The second conn waits in the backlog until the first one is closed.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = l.Accept(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, accepted.Close())
}

func TestTLS(t *testing.T) {
	defer goleak.VerifyNone(t)

	certFile, keyFile := writeSelfSigned(t)
	cfg, err := LoadTLSConfig(certFile, keyFile)
	require.NoError(t, err)

	l, err := Listen(ListenOptions{Addr: "127.0.0.1:0", TLS: cfg})
	require.NoError(t, err)
	defer l.Close()

	// The server side handshake runs on the first read,
	// so it must not wait for the dialer to return.
	received := make(chan []byte, 1)
	go func() {
		defer close(received)

		c, err := l.Accept(context.Background())
		if err != nil {
			return
		}
		defer c.Close()

		if !c.(*Conn).Secure() {
			return
		}

		b := make([]byte, 6)
		n, err := c.Read(b)
		if err == nil {
			received <- b[:n]
		}
	}()

	client, err := Dialer{TLS: &tls.Config{InsecureSkipVerify: true}}.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("secret"))
	require.NoError(t, err)

	require.Equal(t, []byte("secret"), <-received)
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	_, err := LoadTLSConfig("missing.pem", "missing.key")
	require.Error(t, err)
}

func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	return certFile, keyFile
}
