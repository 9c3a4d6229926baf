// Package splitfile loads and normalizes split names for new groups.
package splitfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Split count limits for one group.
const (
	MinSplits = 1
	MaxSplits = 50
)

// DefaultGroupName is used when a group is created without a name.
const DefaultGroupName = "Group"

// LoadNames reads one split name per line. Blank lines in the middle keep their position and
// get a default name later; trailing blank lines are dropped.
func LoadNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only split file.
			_ = cerr
		}
	}()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("split file is empty")
	}
	return names, nil
}

// ParseList splits a comma separated list of names.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// NormalizeNames clamps the count to [MinSplits, MaxSplits] and names blank entries "Split N".
func NormalizeNames(names []string) []string {
	count := len(names)
	if count < MinSplits {
		count = MinSplits
	}
	if count > MaxSplits {
		count = MaxSplits
	}
	out := make([]string, count)
	for i := range out {
		name := ""
		if i < len(names) {
			name = strings.TrimSpace(names[i])
		}
		if name == "" {
			name = fmt.Sprintf("Split %d", i+1)
		}
		out[i] = name
	}
	return out
}

// GroupName trims name and falls back to DefaultGroupName.
func GroupName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultGroupName
	}
	return name
}
