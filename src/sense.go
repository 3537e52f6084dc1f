package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Bus carrier sense capability via a GPIO line.
 *
 * Description:	On a wired-OR bus the RX line itself tells you whether
 *		anyone is driving: it rests at the idle level and any
 *		transmitter pulls it away.  Wiring RX to a GPIO (or
 *		using a UART whose RX pin is also readable as GPIO)
 *		gives the cheap binary sense input the arbitration
 *		loop polls.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type GPIOSense struct {
	line *gpiocdev.Line

	// Logic level the bus rests at.  1 for the usual idle-high
	// UART wiring.
	idle_value int
}

/*-------------------------------------------------------------------
 *
 * Name:	OpenSenseLine
 *
 * Purpose:	Request a GPIO line as the bus sense input.
 *
 * Inputs:	chip	- e.g. "gpiochip0".
 *		offset	- Line number on that chip.
 *		idle_high - True if the bus idles at logic 1.
 *
 *---------------------------------------------------------------*/

func OpenSenseLine(chip string, offset int, idle_high bool) (*GPIOSense, error) {
	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("could not request %s line %d: %w", chip, offset, err)
	}

	var idle = 0
	if idle_high {
		idle = 1
	}

	return &GPIOSense{line: line, idle_value: idle}, nil
}

// Idle reports whether the line is at the idle level right now.
// Read errors count as busy: better to delay a transmission than to
// stomp on one we cannot see.
func (s *GPIOSense) Idle() bool {
	var v, err = s.line.Value()
	return err == nil && v == s.idle_value
}

func (s *GPIOSense) Close() error {
	return s.line.Close()
}
