package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDueDate turns user input like "tomorrow", "next friday", or
// "2026-04-01" into the wire date format. Empty input clears the due
// date.
func parseDueDate(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}

	if d, err := time.Parse("2006-01-02", input); err == nil {
		return d.Format("2006-01-02"), nil
	}

	r, err := dueParser.Parse(input, now)
	if err != nil {
		return "", fmt.Errorf("parse due date: %w", err)
	}
	if r == nil {
		return "", fmt.Errorf("could not understand %q as a date", input)
	}
	return r.Time.Format("2006-01-02"), nil
}
