package server

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/calderadb/caldera/engine"
	"github.com/calderadb/caldera/protocol"
)

func setupTestServer(t *testing.T) (net.Addr, *engine.Engine) {
	t.Helper()

	eng, err := engine.Open(filepath.Join(t.TempDir(), "t.db"), 0)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr()
	ln.Close()

	srv := New(eng, addr.String(), 4)
	go func() {
		if err := srv.Run(); err != nil {
			t.Logf("server exited: %v", err)
		}
	}()
	t.Cleanup(func() { _ = srv.Shutdown() })

	waitForListener(t, addr.String())
	return addr, eng
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}

func sendText(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	if err := protocol.WriteFrame(conn, &protocol.Frame{Type: protocol.FrameCommand, Payload: []byte(line)}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return string(frame.Payload)
}

func TestServerSetGetDelete(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got := sendText(t, conn, "SET 1 hello"); got != "OK" {
		t.Fatalf("SET reply = %q, want OK", got)
	}
	if got := sendText(t, conn, "GET 1"); got != "hello" {
		t.Fatalf("GET reply = %q, want hello", got)
	}
	if got := sendText(t, conn, "DEL 1"); got != "OK" {
		t.Fatalf("DEL reply = %q, want OK", got)
	}
	if got := sendText(t, conn, "GET 1"); got != "(nil)" {
		t.Fatalf("GET after DEL reply = %q, want (nil)", got)
	}
}

func TestServerPing(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got := sendText(t, conn, "PING"); got != "PONG" {
		t.Fatalf("PING reply = %q, want PONG", got)
	}
}

func TestServerStrcatAndSubstr(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sendText(t, conn, "SET 1 hello")
	sendText(t, conn, "STRCAT 1 world")
	if got := sendText(t, conn, "GET 1"); got != "helloworld" {
		t.Fatalf("GET after STRCAT = %q, want helloworld", got)
	}

	if got := sendText(t, conn, "SUBSTR 1 0 5"); got != "OK" {
		t.Fatalf("SUBSTR reply = %q, want OK", got)
	}
	if got := sendText(t, conn, "GET 1"); got != "hello" {
		t.Fatalf("GET after SUBSTR = %q, want hello", got)
	}
}

func TestServerExprCommand(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sendText(t, conn, "SET 1 7")
	if got := sendText(t, conn, "EXPR(GET 1+3)"); got != "10" {
		t.Fatalf("EXPR reply = %q, want 10", got)
	}
}

func TestServerSetWithExprValue(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sendText(t, conn, "SET 1 4")
	if got := sendText(t, conn, "SET 2 EXPR(GET 1*2)"); got != "OK" {
		t.Fatalf("SET with EXPR reply = %q, want OK", got)
	}
	if got := sendText(t, conn, "GET 2"); got != "8" {
		t.Fatalf("GET 2 = %q, want 8", got)
	}
}

func TestServerAllReturnsRange(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sendText(t, conn, "SET 1 1")
	sendText(t, conn, "SET 2 2")
	got := sendText(t, conn, "ALL")
	if got == "" {
		t.Fatalf("ALL returned empty response")
	}
}

func TestServerExitClosesConnection(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got := sendText(t, conn, "EXIT"); got != "OK" {
		t.Fatalf("EXIT reply = %q, want OK", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection to close after EXIT")
	}
}

func TestServerUnknownCommandReturnsError(t *testing.T) {
	addr, _ := setupTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	got := sendText(t, conn, "FROB 1")
	if got[:4] != "ERR " {
		t.Fatalf("FROB reply = %q, want ERR prefix", got)
	}
}
