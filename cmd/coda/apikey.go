package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/phrazzld/coda-batch/internal/credentials"
)

// errNoKeyEntered is returned when the prompt got no key.
var errNoKeyEntered = errors.New("no API key entered")

// resolveAPIKey returns the configured key, else the stored key, else asks
// for one on stdin and stores it for the next run.
func resolveAPIKey(configured string, keyFile *credentials.KeyFile, stdin io.Reader, stdout io.Writer) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}

	key, err := keyFile.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, credentials.ErrNoAPIKey) {
		return "", err
	}

	fmt.Fprint(stdout, "API KEY: ")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key = strings.TrimSpace(line)
	if key == "" {
		return "", errNoKeyEntered
	}

	if err := keyFile.Save(key); err != nil {
		return "", err
	}
	return key, nil
}
