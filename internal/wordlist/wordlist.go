// Package wordlist provides the embedded default subdomain wordlist and a
// loader for user-supplied ones.
package wordlist

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed subdomains.txt
var embeddedSubdomains string

// Subdomains returns the embedded subdomain wordlist as a string slice.
// Lines are trimmed and empty lines/comments are skipped.
func Subdomains() []string {
	words, _ := parse(strings.NewReader(embeddedSubdomains))
	return words
}

// Load reads a wordlist file, one label per line. If path is empty, the
// embedded default is used. Entries keep their file order and repeats are
// kept as well; blank lines and comments are skipped.
func Load(path string) ([]string, error) {
	if path == "" {
		return Subdomains(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading wordlist %s: %w", path, err)
	}
	defer f.Close()

	words, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading wordlist %s: %w", path, err)
	}
	return words, nil
}

func parse(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
