package main

import (
	"os"
	"time"

	"github.com/theckman/yacspin"
)

// spinner shows msg while fcn runs.  Output that is not a terminal gets
// no animation.
func spinner(msg string, fcn func(s *yacspin.Spinner) error) error {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		Writer:            os.Stderr,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return fcn(nil)
	}
	_ = s.Start()
	err = fcn(s)
	if err != nil {
		s.StopFailMessage(err.Error())
		_ = s.StopFail()
		return err
	}
	_ = s.Stop()
	return nil
}

// progress updates the spinner message, if there is a spinner
func progress(s *yacspin.Spinner, msg string) {
	if s != nil {
		s.Message(msg)
	}
}
