// Package input reads newline-delimited link lists.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const maxLineSize = 1 << 20

// ReadLinks loads links from path. A missing or unreadable file is an error.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	links, err := ParseLinks(f)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	return links, nil
}

// ParseLinks returns one trimmed link per non-blank line. A UTF-8 BOM is
// dropped and BOM-marked UTF-16 input is converted to UTF-8.
func ParseLinks(r io.Reader) ([]string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	sc := bufio.NewScanner(transform.NewReader(r, dec))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var links []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		links = append(links, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return links, nil
}
