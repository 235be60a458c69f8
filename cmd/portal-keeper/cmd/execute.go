package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var errUsage = errors.New("usage")

// exitError carries a non-zero exit code without an error message of its own.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func Execute() int {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		return exitCode(err, root.ErrOrStderr(), func() { _ = root.Help() })
	}
	return 0
}

func exitCode(err error, stderr io.Writer, help func()) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(stderr, "ERROR:", err)
	if strings.HasPrefix(err.Error(), "unknown command") {
		help()
		return 2
	}
	return 1
}
