package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

type menuChoice int

const (
	choiceEnroll menuChoice = iota + 1
	choiceVerify
)

var errInvalidChoice = errors.New("invalid choice")

// readMenu shows the two-option menu and reads the selection. For enrollment it
// also asks for the user's name.
func readMenu(r *bufio.Reader, out io.Writer) (menuChoice, string, error) {
	fmt.Fprintln(out, "1. Register a User")
	fmt.Fprintln(out, "2. Verify a User")
	fmt.Fprint(out, "Enter your choice: ")

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return 0, "", err
	}

	switch strings.TrimSpace(line) {
	case "1":
		fmt.Fprint(out, "Enter the user's name: ")
		name, err := r.ReadString('\n')
		if err != nil && name == "" {
			return 0, "", err
		}
		return choiceEnroll, strings.TrimSpace(name), nil
	case "2":
		return choiceVerify, "", nil
	default:
		return 0, "", fmt.Errorf("%w %q", errInvalidChoice, strings.TrimSpace(line))
	}
}

func runMenu(ctx context.Context, in io.Reader, out io.Writer) {
	choice, name, err := readMenu(bufio.NewReader(in), out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return
		}
		fmt.Fprintf(out, "❌ %v. Please enter 1 or 2.\n", err)
		return
	}

	switch choice {
	case choiceEnroll:
		runEnroll(ctx, name)
	case choiceVerify:
		runVerify(ctx)
	}
}
