package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	TLS          bool
}

// ValkeyProvider implements Provider over RESP with a small pool of idle
// connections. Connections that see an I/O error are discarded.
type ValkeyProvider struct {
	cfg  ValkeyConfig
	idle chan *valkeyConn
}

// NewValkeyProvider creates a Provider and pings the server so bad
// addresses or credentials fail at startup.
func NewValkeyProvider(ctx context.Context, cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	p := &ValkeyProvider{cfg: cfg, idle: make(chan *valkeyConn, cfg.PoolSize)}

	reply, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if string(reply.data) != "PONG" {
		return nil, fmt.Errorf("unexpected PING response: %s", reply.data)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	switch reply.kind {
	case '_':
		return nil, ErrCacheMiss
	case '$':
		return reply.data, nil
	default:
		return nil, fmt.Errorf("unexpected valkey reply %q for GET", reply.kind)
	}
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.do(ctx, "SET", args...)
	if err != nil {
		return err
	}
	if reply.kind != '+' || string(reply.data) != "OK" {
		return fmt.Errorf("unexpected SET response: %s", reply.data)
	}
	return nil
}

// Del removes a key from the cache.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", key)
	return err
}

// Close closes idle connections.
func (p *ValkeyProvider) Close() error {
	for {
		select {
		case vc := <-p.idle:
			_ = vc.conn.Close()
		default:
			return nil
		}
	}
}

func (p *ValkeyProvider) do(ctx context.Context, command string, args ...string) (respReply, error) {
	if err := ctx.Err(); err != nil {
		return respReply{}, err
	}
	vc, err := p.acquire(ctx)
	if err != nil {
		return respReply{}, err
	}
	reply, err := vc.roundTrip(command, args...)
	var serverErr respError
	if err != nil && !errors.As(err, &serverErr) {
		_ = vc.conn.Close()
		return respReply{}, err
	}
	p.release(vc)
	return reply, err
}

func (p *ValkeyProvider) acquire(ctx context.Context) (*valkeyConn, error) {
	select {
	case vc := <-p.idle:
		return vc, nil
	default:
	}

	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(p.cfg.Addr)
		if splitErr != nil {
			host = p.cfg.Addr
		}
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	vc := &valkeyConn{conn: conn, rw: bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)), cfg: p.cfg}
	if err := vc.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return vc, nil
}

func (p *ValkeyProvider) release(vc *valkeyConn) {
	select {
	case p.idle <- vc:
	default:
		_ = vc.conn.Close()
	}
}

// respError is an error reply from the server; the connection stays usable.
type respError string

func (e respError) Error() string { return string(e) }

type respReply struct {
	kind byte
	data []byte
}

type valkeyConn struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	cfg  ValkeyConfig
}

func (vc *valkeyConn) handshake() error {
	if vc.cfg.Password != "" {
		args := []string{vc.cfg.Password}
		if vc.cfg.Username != "" {
			args = []string{vc.cfg.Username, vc.cfg.Password}
		}
		if _, err := vc.roundTrip("AUTH", args...); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
	}
	if vc.cfg.DB > 0 {
		if _, err := vc.roundTrip("SELECT", strconv.Itoa(vc.cfg.DB)); err != nil {
			return fmt.Errorf("select failed: %w", err)
		}
	}
	return nil
}

func (vc *valkeyConn) roundTrip(command string, args ...string) (respReply, error) {
	if err := vc.conn.SetWriteDeadline(time.Now().Add(vc.cfg.WriteTimeout)); err != nil {
		return respReply{}, err
	}
	fmt.Fprintf(vc.rw, "*%d\r\n$%d\r\n%s\r\n", len(args)+1, len(command), command)
	for _, arg := range args {
		fmt.Fprintf(vc.rw, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if err := vc.rw.Flush(); err != nil {
		return respReply{}, err
	}

	if err := vc.conn.SetReadDeadline(time.Now().Add(vc.cfg.ReadTimeout)); err != nil {
		return respReply{}, err
	}
	return vc.readReply()
}

func (vc *valkeyConn) readReply() (respReply, error) {
	line, err := vc.rw.ReadString('\n')
	if err != nil {
		return respReply{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return respReply{}, errors.New("empty RESP line")
	}
	kind, body := line[0], line[1:]
	switch kind {
	case '+', ':':
		return respReply{kind: kind, data: []byte(body)}, nil
	case '-':
		return respReply{}, respError(body)
	case '_':
		return respReply{kind: '_'}, nil
	case '$':
		size, err := strconv.Atoi(body)
		if err != nil {
			return respReply{}, err
		}
		if size < 0 {
			return respReply{kind: '_'}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(vc.rw, buf); err != nil {
			return respReply{}, err
		}
		return respReply{kind: '$', data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", kind)
	}
}
