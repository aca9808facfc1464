package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// promptLine prints prompt and reads one trimmed line. A final line without a
// newline is accepted.
func (a *App) promptLine(prompt string) (string, error) {
	a.printf("%s: ", prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) promptPassword() (string, error) {
	a.printf("Password: ")
	pw, err := a.ReadPassword()
	fmt.Fprintln(a.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (a *App) confirm(question string) (bool, error) {
	answer, err := a.promptLine(question + " [y/N]")
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
