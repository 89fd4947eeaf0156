// Command calderactl is an interactive line-oriented client for calderad.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/calderadb/caldera/protocol"
)

const banner = `
   ____      _     _
  / ___|__ _| | __| | ___ _ __ __ _
 | |   / _` + "`" + ` | |/ _` + "`" + ` |/ _ \ '__/ _` + "`" + ` |
 | |__| (_| | | (_| |  __/ | | (_| |
  \____\__,_|_|\__,_|\___|_|  \__,_|
`

const help = `Available commands:
  GET <key>                    get value by key
  SET <key> <value>            set key to a literal or EXPR(...)
  UPDATE <key> <value>         update an existing key
  DEL <key>                    delete a key
  ALL                          list every key-value pair
  STRLEN <key>                 length of a string value
  STRCAT <key> <value>         append to a string value
  SUBSTR <key> <start> <len>   slice a string value in place
  EXPR(<expression>)           evaluate an expression, e.g. EXPR(GET 1 + 3)
  PING                         check the connection
  DUMPHEAP                     print a slotted-page diagnostic
  exit                         close the connection and quit
  help                         show this message
`

func main() {
	addr := flag.String("addr", "127.0.0.1:6380", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "calderactl: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Print(banner)
	fmt.Printf("Connected to %s. Type 'help' for commands, 'exit' to quit.\n", *addr)

	repl(conn, os.Stdin, os.Stdout)
}

// repl reads one line at a time from in, sends it to conn as a command
// frame unless it is a local-only directive (help/exit), and prints the
// server's response to out.
func repl(conn net.Conn, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "caldera> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "help":
			fmt.Fprint(out, help)
			continue
		case "exit", "quit":
			sendCommand(conn, "EXIT")
			return
		}

		resp, err := sendCommand(conn, line)
		if err != nil {
			fmt.Fprintf(out, "connection error: %v\n", err)
			return
		}
		fmt.Fprintln(out, resp)
	}
}

func sendCommand(conn net.Conn, line string) (string, error) {
	if err := protocol.WriteFrame(conn, &protocol.Frame{
		Type:    protocol.FrameCommand,
		Payload: []byte(line),
	}); err != nil {
		return "", err
	}
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		return "", err
	}
	return string(frame.Payload), nil
}
