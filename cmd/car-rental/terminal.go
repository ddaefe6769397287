package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

type screen int

const (
	screenLogin screen = iota
	screenHome
)

// terminal is the CLI front end. It is the session's Navigator and Notifier:
// navigation switches the shell menu, and one-shot commands print a hint
// line instead.
type terminal struct {
	in   *bufio.Reader
	out  io.Writer
	inFd int

	mu     sync.Mutex
	screen screen
	hints  bool
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &terminal{in: bufio.NewReader(in), out: out, inFd: fd}
}

func (t *terminal) ToLogin() {
	if t.navigate(screenLogin) {
		t.Println("You are signed out. Run `car-rental login` to sign in.")
	}
}

func (t *terminal) ToHome() {
	if t.navigate(screenHome) {
		t.Println("Signed in.")
	}
}

func (t *terminal) navigate(to screen) (hint bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screen = to
	return t.hints
}

func (t *terminal) current() screen {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen
}

func (t *terminal) setHints(on bool) {
	t.mu.Lock()
	t.hints = on
	t.mu.Unlock()
}

func (t *terminal) Alert(title, message string) {
	t.Printf("! %s: %s\n", title, message)
}

func (t *terminal) Printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) Println(args ...interface{}) {
	fmt.Fprintln(t.out, args...)
}

// Prompt reads one trimmed line. io.EOF is returned once input is exhausted.
func (t *terminal) Prompt(label string) (string, error) {
	t.Printf("%s: ", label)
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptDefault is Prompt where an empty answer keeps def.
func (t *terminal) PromptDefault(label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", label, def)
	}
	v, err := t.Prompt(label)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// Secret reads a line without echo when stdin is a terminal.
func (t *terminal) Secret(label string) (string, error) {
	if t.inFd < 0 {
		return t.Prompt(label)
	}

	t.Printf("%s: ", label)
	data, err := term.ReadPassword(t.inFd)
	t.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (t *terminal) Confirm(label string) (bool, error) {
	v, err := t.Prompt(label + " (yes/no)")
	if err != nil {
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}
