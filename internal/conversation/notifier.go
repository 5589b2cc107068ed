// Package conversation delivers user-facing notices that are not part
// of the dialogue transcript: timer alerts, capture problems, kitchen
// service hiccups.
package conversation

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*CLINotifier)(nil)

// ANSI escape codes for terminal formatting.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	red   = "\033[31m"
	cyan  = "\033[36m"
)

// PrintFunc is a function used to print formatted output. Matches the
// signature of both fmt.Printf and display.UI.Printf, so notices can be
// routed into whichever surface owns the terminal.
type PrintFunc func(format string, a ...interface{})

// CLINotifier writes notices to the terminal with ANSI formatting.
// Urgent notices ring the terminal bell; in a kitchen the screen is
// rarely watched.
type CLINotifier struct {
	log     *logger.Logger
	printFn PrintFunc
}

// NewCLINotifier creates a terminal notifier. If printFn is nil,
// fmt.Printf is used.
func NewCLINotifier(log *logger.Logger, printFn PrintFunc) *CLINotifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &CLINotifier{log: log, printFn: printFn}
}

// Notify prints a normal notice.
func (n *CLINotifier) Notify(ctx context.Context, message string) error {
	n.log.Debug("notify: %s", message)
	n.printFn("%s%s• %s%s", cyan, bold, message, reset)
	return nil
}

// NotifyUrgent prints an urgent notice in bold red and rings the bell.
func (n *CLINotifier) NotifyUrgent(ctx context.Context, message string) error {
	n.log.Debug("notify-urgent: %s", message)
	n.printFn("\a%s%s! %s%s", red, bold, message, reset)
	return nil
}
