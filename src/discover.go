package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Find serial devices that could plausibly be a WBTV
 *		bus attachment.
 *
 * Description:	Enumerates the tty subsystem through udev and keeps
 *		only nodes with real hardware behind them (a bus ID or
 *		a parent device), which filters out the dozens of
 *		phantom /dev/ttyS* entries every PC has.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/jochenvg/go-udev"
)

func ListSerialPorts() ([]string, error) {
	var u udev.Udev

	var e = u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, err
	}

	var devices, err = e.Devices()
	if err != nil {
		return nil, err
	}

	var ports []string

	for _, d := range devices {
		if d.Devnode() == "" {
			continue
		}
		if d.PropertyValue("ID_BUS") == "" && d.Parent() == nil {
			continue
		}
		ports = append(ports, d.Devnode())
	}

	return ports, nil
}
