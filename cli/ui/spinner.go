package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

type Spinner struct {
	*spinner.Spinner
	msg string
}

// NewSpinner starts a spinner with the given message on w. Nothing is drawn when w is not a terminal.
func NewSpinner(w io.Writer, msg string) *Spinner {
	s := &Spinner{
		spinner.New(
			spinner.CharSets[14],
			200*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(w),
			spinner.WithSuffix(" "+msg),
		),
		msg,
	}
	s.Start()
	return s
}

// UpdateMessage is safe to call on a nil Spinner.
func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.Lock()
	s.Spinner.Suffix = " " + msg
	s.Unlock()
	s.msg = msg
}

func (s *Spinner) Success(msg ...string) {
	s.stop(color.HiGreenString("✓"), msg)
}

func (s *Spinner) Fail(msg ...string) {
	s.stop(color.HiRedString("✗"), msg)
}

// stop is safe to call on a nil Spinner, the last message is kept when msg is empty.
func (s *Spinner) stop(mark string, msg []string) {
	if s == nil {
		return
	}
	if len(msg) == 0 {
		msg = []string{s.msg}
	}
	s.Spinner.FinalMSG = fmt.Sprintf("%s %s\n", mark, msg[0])
	s.Stop()
}
