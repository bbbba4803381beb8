package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-process RESP server covering the commands RedisClient uses.
type fakeRedis struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Time
	wg   sync.WaitGroup
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeRedis{ln: ln, data: map[string]string{}, ttl: map[string]time.Time{}}
	srv.wg.Add(1)
	go srv.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		srv.wg.Wait()
	})
	return srv
}

func (s *fakeRedis) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *fakeRedis) handle(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		resp, err := readResponse(reader)
		if err != nil {
			return
		}
		items, _ := resp.([]interface{})
		args := make([]string, len(items))
		for i, item := range items {
			b, _ := item.([]byte)
			args[i] = string(b)
		}
		if _, err := io.WriteString(conn, s.exec(args)); err != nil {
			return
		}
	}
}

func (s *fakeRedis) exec(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		s.data[args[1]] = args[2]
		delete(s.ttl, args[1])
		if len(args) == 5 {
			ms, _ := strconv.Atoi(args[4])
			s.ttl[args[1]] = time.Now().Add(time.Duration(ms) * time.Millisecond)
		}
		return "+OK\r\n"
	case "GET":
		value, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return bulk(value)
	case "INCR":
		n, _ := strconv.ParseInt(s.data[args[1]], 10, 64)
		n++
		s.data[args[1]] = strconv.FormatInt(n, 10)
		return fmt.Sprintf(":%d\r\n", n)
	case "PEXPIRE":
		ms, _ := strconv.Atoi(args[2])
		s.ttl[args[1]] = time.Now().Add(time.Duration(ms) * time.Millisecond)
		return ":1\r\n"
	case "PTTL":
		deadline, ok := s.ttl[args[1]]
		if !ok {
			return ":-1\r\n"
		}
		return fmt.Sprintf(":%d\r\n", time.Until(deadline).Milliseconds())
	case "DEL":
		removed := 0
		for _, key := range args[1:] {
			if _, ok := s.data[key]; ok {
				delete(s.data, key)
				removed++
			}
		}
		return fmt.Sprintf(":%d\r\n", removed)
	case "SCAN":
		pattern := strings.ReplaceAll(args[3], `\`, "")
		keys := make([]string, 0)
		for key := range s.data {
			if ok, _ := path.Match(pattern, key); ok {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("*2\r\n")
		b.WriteString(bulk("0"))
		fmt.Fprintf(&b, "*%d\r\n", len(keys))
		for _, key := range keys {
			b.WriteString(bulk(key))
		}
		return b.String()
	default:
		return "-ERR unknown command\r\n"
	}
}

func bulk(value string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(value), value)
}

func TestRedisClientRoundTrip(t *testing.T) {
	srv := startFakeRedis(t)
	client, err := NewRedisClient(RedisConfig{Address: srv.ln.Addr().String(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Set(ctx, "card:abc", []byte("payload with\r\nnewlines"), time.Hour))

	value, ok, err := client.Get(ctx, "card:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "payload with\r\nnewlines", string(value))

	srv.mu.Lock()
	_, stored := srv.data["linkcard:card:abc"]
	srv.mu.Unlock()
	require.True(t, stored)

	require.NoError(t, client.Delete(ctx, "card:abc"))
	_, ok, err = client.Get(ctx, "card:abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisClientIncrementWithTTL(t *testing.T) {
	srv := startFakeRedis(t)
	client, err := NewRedisClient(RedisConfig{Address: srv.ln.Addr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	count, ttl, err := client.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, 50*time.Second)

	count, _, err = client.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestRedisClientDeletePrefix(t *testing.T) {
	srv := startFakeRedis(t)
	client, err := NewRedisClient(RedisConfig{Address: srv.ln.Addr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	for _, key := range []string{"card:1", "card:2", "friendlink:feed:1"} {
		require.NoError(t, client.Set(ctx, key, []byte("v"), 0))
	}

	removed, err := client.DeletePrefix(ctx, "card:")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, ok, err := client.Get(ctx, "friendlink:feed:1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `linkcard:a\*b\?\[c\]`, escapeGlob("linkcard:a*b?[c]"))
}
