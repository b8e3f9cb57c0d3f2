// Package logging provides the leveled, colored CLI logger and the text
// formatters used for command output.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Logger writes info and debug lines to Out when enabled, and warnings and
// errors to Err always. The zero value logs warnings and errors to the
// standard streams.
type Logger struct {
	Verbose bool
	Debug   bool

	Out io.Writer
	Err io.Writer
}

func (l Logger) out() io.Writer {
	if l.Out == nil {
		return os.Stdout
	}
	return l.Out
}

func (l Logger) err() io.Writer {
	if l.Err == nil {
		return os.Stderr
	}
	return l.Err
}

func (l Logger) Infof(msg string, args ...any) {
	if l.Verbose || l.Debug {
		fmt.Fprintf(l.out(), color.GreenString("[info] ")+msg+"\n", args...)
	}
}

func (l Logger) Debugf(msg string, args ...any) {
	if l.Debug {
		fmt.Fprintf(l.out(), color.CyanString("[debug] ")+msg+"\n", args...)
	}
}

func (l Logger) Warnf(msg string, args ...any) {
	fmt.Fprintf(l.err(), color.YellowString("[warn] ")+msg+"\n", args...)
}

func (l Logger) Errorf(msg string, args ...any) {
	fmt.Fprintf(l.err(), color.RedString("[error] ")+msg+"\n", args...)
}
