package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword    = term.ReadPassword
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// readPassphrase prompts on w and reads a passphrase without echo. When
// stdin is not a terminal the first line of in is used, so scripts can
// pipe it in.
func readPassphrase(in io.Reader, w io.Writer, prompt string) (string, error) {
	if !stdinIsTerminal() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(w, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

// readNewPassphrase asks twice and requires both entries to match.
func readNewPassphrase(in io.Reader, w io.Writer) (string, error) {
	if !stdinIsTerminal() {
		return readPassphrase(in, w, "")
	}
	first, err := readPassphrase(in, w, "New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := readPassphrase(in, w, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", usagef("passphrases do not match")
	}
	return first, nil
}

// noteText returns the note from args, or reads it from in when args is
// empty and stdin is piped.
func noteText(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if stdinIsTerminal() {
		return "", usagef("note text required (pass it as an argument or pipe it on stdin)")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading note from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
