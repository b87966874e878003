package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"eventgate/internal/scanner"
)

// station is the part of scanner.Controller the console drives.
type station interface {
	Scan(ctx context.Context, payload string) bool
	Confirm(ctx context.Context) error
	Close()
	Notify(message string)
	Wait()
}

// runSession feeds stdin lines to the controller until EOF, "q" or ctx ends.
func runSession(ctx context.Context, st station, in io.Reader, errOut io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	defer st.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read scans: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := handleLine(ctx, st, strings.TrimSpace(line), errOut); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, st station, line string, errOut io.Writer) bool {
	switch strings.ToLower(line) {
	case "":
		return false
	case "q", "quit":
		return true
	case "y", "confirm":
		err := st.Confirm(ctx)
		switch {
		case errors.Is(err, scanner.ErrNothingToConfirm):
			st.Notify("nothing to confirm")
		case err != nil:
			var rejected *scanner.RejectedError
			if !errors.As(err, &rejected) {
				_, _ = fmt.Fprintln(errOut, "confirm failed:", err)
			}
		}
	case "x", "close":
		st.Close()
	default:
		if !st.Scan(ctx, line) {
			_, _ = fmt.Fprintln(errOut, "scan ignored")
		}
	}
	return false
}
