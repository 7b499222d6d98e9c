// Package shellparse turns a configured build command string into an argv
// and environment without invoking a shell. Quoting follows POSIX word
// splitting: single quotes are literal, double quotes honour backslash
// before " \ $ and `, and an unquoted backslash escapes any character.
package shellparse

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrUnclosedQuote  = errors.New("unclosed quote in command string")
	ErrTrailingEscape = errors.New("trailing escape character at end of command")
	ErrEmptyCommand   = errors.New("command string has no program")
)

// Command is a parsed command line.
type Command struct {
	// Env holds leading NAME=value assignments, in order.
	Env  []string
	Name string
	Args []string
}

// Argv returns Name followed by Args.
func (c *Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command back into a shell-safe string.
func (c *Command) String() string {
	return Join(append(append([]string{}, c.Env...), c.Argv()...))
}

// Parse splits input and separates leading environment assignments from
// the program and its arguments.
func Parse(input string) (*Command, error) {
	words, err := Split(input)
	if err != nil {
		return nil, err
	}

	cmd := &Command{}
	i := 0
	for ; i < len(words) && isAssignment(words[i]); i++ {
		cmd.Env = append(cmd.Env, words[i])
	}
	if i == len(words) {
		return nil, ErrEmptyCommand
	}
	cmd.Name = words[i]
	cmd.Args = words[i+1:]
	return cmd, nil
}

func isAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	if eq <= 0 {
		return false
	}
	for i, r := range word[:eq] {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

type splitState int

const (
	stateBare splitState = iota
	stateSingle
	stateDouble
)

// Split breaks input into words.
func Split(input string) ([]string, error) {
	words := []string{}
	var word strings.Builder
	inWord := false
	state := stateBare

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch state {
		case stateSingle:
			if r == '\'' {
				state = stateBare
			} else {
				word.WriteRune(r)
			}

		case stateDouble:
			switch {
			case r == '"':
				state = stateBare
			case r == '\\' && i+1 < len(runes) && strings.ContainsRune("\"\\$`", runes[i+1]):
				i++
				word.WriteRune(runes[i])
			default:
				word.WriteRune(r)
			}

		default:
			switch {
			case unicode.IsSpace(r):
				if inWord {
					words = append(words, word.String())
					word.Reset()
					inWord = false
				}
			case r == '\\':
				if i+1 == len(runes) {
					return nil, ErrTrailingEscape
				}
				i++
				word.WriteRune(runes[i])
				inWord = true
			case r == '\'':
				state = stateSingle
				inWord = true
			case r == '"':
				state = stateDouble
				inWord = true
			default:
				word.WriteRune(r)
				inWord = true
			}
		}
	}

	switch state {
	case stateSingle:
		return nil, fmt.Errorf("%w: unclosed single quote", ErrUnclosedQuote)
	case stateDouble:
		return nil, fmt.Errorf("%w: unclosed double quote", ErrUnclosedQuote)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

// Join quotes each argument where needed and joins them with spaces.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}
	return strings.Join(quoted, " ")
}

// Quote returns arg in a form Split reads back as a single word.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, needsQuoting) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(`'"\$`+"`"+`;&|<>(){}*?[]#~!`, r)
}
