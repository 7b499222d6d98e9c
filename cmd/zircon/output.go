package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	nameColor    = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	successColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printWarning(w io.Writer, msg string) {
	warnColor.Fprintf(w, "warning: %s\n", msg)
}

func printError(w io.Writer, err error) {
	errorColor.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}

func name(s string) string {
	return nameColor.Sprint(s)
}
