// Package readpassword reads a password from the terminal, from stdin
// or from a file.
package readpassword

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Once prompts for the password a single time. When stdin is not a
// terminal the password is read as the first line of stdin instead,
// which keeps piping possible.
func Once(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return string(pw), nil
}

// Twice prompts for the password twice and errors out on mismatch. Used
// when the password protects something that is about to be written.
func Twice(prompt string) (string, error) {
	p1, err := Once(prompt)
	if err != nil {
		return "", err
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// Piped input: there is no second line to compare against.
		return p1, nil
	}
	p2, err := Once(prompt + " (again)")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", fmt.Errorf("passwords do not match")
	}
	return p1, nil
}

// FromFile reads the first line of the file as the password.
func FromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return readLine(f)
}

func readLine(f *os.File) (string, error) {
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
