package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/voxchat/internal/app"
	"github.com/MrWong99/voxchat/internal/transcript"
)

// client is the part of [app.Client] the console drives.
type client interface {
	Connect(ctx context.Context, username string) error
	Disconnect() error
	StartRecording(ctx context.Context) error
	StopRecording() error
	SendChat(text string) error
	Conversation() []transcript.Entry
	Updates() <-chan app.Update
}

// console reads commands from in and renders updates to out.
type console struct {
	in io.Reader
	c  client

	mu      sync.Mutex
	out     io.Writer
	printed int // entries fully printed
}

func newConsole(in io.Reader, out io.Writer, c client) *console {
	return &console{in: in, out: out, c: c}
}

func (con *console) printf(format string, args ...any) {
	con.mu.Lock()
	defer con.mu.Unlock()
	fmt.Fprintf(con.out, format, args...)
}

// loop executes commands until /quit, EOF, or ctx is done. A username is
// prompted for when none was given.
func (con *console) loop(ctx context.Context, username string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(con.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if username == "" {
		con.printf("username> ")
	} else {
		con.connect(ctx, username)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if username == "" {
				username = line
				con.connect(ctx, username)
				continue
			}
			if !con.exec(ctx, line) {
				return nil
			}
		}
	}
}

func (con *console) connect(ctx context.Context, username string) {
	if err := con.c.Connect(ctx, username); err != nil {
		con.printf("! connect failed: %v\n", err)
	}
}

// exec runs one input line and reports whether to keep going.
func (con *console) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/record":
		err = con.c.StartRecording(ctx)
	case "/stop":
		err = con.c.StopRecording()
	case "/connect":
		if strings.TrimSpace(arg) == "" {
			err = errors.New("usage: /connect NAME")
			break
		}
		err = con.c.Connect(ctx, strings.TrimSpace(arg))
	case "/disconnect":
		err = con.c.Disconnect()
	case "/history":
		con.history()
	default:
		if strings.HasPrefix(cmd, "/") {
			err = fmt.Errorf("unknown command %s", cmd)
			break
		}
		err = con.c.SendChat(line)
	}
	if err != nil {
		con.printf("! %v\n", err)
	}
	return true
}

func (con *console) history() {
	con.mu.Lock()
	defer con.mu.Unlock()
	for _, e := range con.c.Conversation() {
		fmt.Fprintf(con.out, "%s: %s\n", e.Role, e.Content)
	}
}

// render prints updates until ctx is done. The last conversation entry is
// redrawn in place while it is still streaming.
func (con *console) render(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-con.c.Updates():
			con.show(u)
		}
	}
}

func (con *console) show(u app.Update) {
	con.mu.Lock()
	defer con.mu.Unlock()
	switch u.Kind {
	case app.UpdateConnecting:
		fmt.Fprintln(con.out, "* connecting…")
	case app.UpdateConnected:
		fmt.Fprintf(con.out, "* connected (session %s); /record to talk\n", u.SessionID)
	case app.UpdateDisconnected:
		fmt.Fprintln(con.out, "* disconnected")
	case app.UpdateError:
		fmt.Fprintf(con.out, "! %v\n", u.Err)
	case app.UpdateRecording:
		if u.Recording {
			fmt.Fprintln(con.out, "* recording")
		} else {
			fmt.Fprintln(con.out, "* recording stopped")
		}
	case app.UpdateTranscript:
		con.drawEntries(u.Entries)
	}
}

// drawEntries prints entries beyond those already printed. Must be called
// with con.mu held.
func (con *console) drawEntries(entries []transcript.Entry) {
	if len(entries) == 0 {
		return
	}
	// Finish lines for entries that are no longer last.
	for con.printed < len(entries)-1 {
		e := entries[con.printed]
		fmt.Fprintf(con.out, "\r\033[K%s: %s\n", e.Role, e.Content)
		con.printed++
	}
	last := entries[len(entries)-1]
	fmt.Fprintf(con.out, "\r\033[K%s: %s", last.Role, last.Content)
}
