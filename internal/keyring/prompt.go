package keyring

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// readPassword reads a line from the controlling terminal without echo,
// falling back to stdin when there is no tty
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	tty, err := os.Open("/dev/tty")
	if err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	passwordBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

// PromptPassword prompts for the SSH password of user
func PromptPassword(user string) (string, error) {
	password, err := readPassword(fmt.Sprintf("Enter SSH password for '%s': ", user))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// PromptAndConfirmPassword prompts for a password twice and confirms they match
func PromptAndConfirmPassword(user string) (string, error) {
	first, err := PromptPassword(user)
	if err != nil {
		return "", err
	}

	second, err := readPassword(fmt.Sprintf("Confirm SSH password for '%s': ", user))
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}

	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}
