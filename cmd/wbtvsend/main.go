/* Send one WBTV message (or a TIME broadcast) from the command line. */
package main

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	wbtv "github.com/eternityforest/wbtv/src"
)

func main() {
	var port = pflag.StringP("port", "p", "", "Serial device, e.g. /dev/ttyUSB0")
	var speed = pflag.IntP("speed", "s", 9600, "Serial port speed")
	var sendTime = pflag.Bool("time", false, "Broadcast the host clock on the TIME channel instead of a message")
	var errorTicks = pflag.Uint32("claimed-error", 65536, "Error bound to claim for the host clock, in 1/65536 s")
	pflag.Parse()

	if *port == "" {
		log.Fatal("A port is required; use --port")
	}

	var args = pflag.Args()

	var opts = wbtv.DefaultOptions()
	opts.AdvMode = *sendTime

	var serial, err = wbtv.OpenSerialPort(*port, *speed)
	if err != nil {
		log.Fatal("Could not open port", "err", err)
	}
	defer serial.Close()

	// A one-shot sender has no business arbitrating against traffic
	// it never listens to, so full duplex mode is fine even on a
	// shared bus: worst case is a collision another node detects.
	var node = wbtv.NewFullDuplexNode(serial, nil, opts)

	if *sendTime {
		var now = time.Now()
		var fraction = uint16(uint64(now.Nanosecond()) * 65536 / 1_000_000_000)

		node.Clock().SetTime(now.Unix(), fraction, *errorTicks)
		node.SendTime()
		log.Info("TIME broadcast sent", "seconds", now.Unix(), "claimed_error", *errorTicks)
		return
	}

	if len(args) != 2 {
		log.Fatal("Usage: wbtvsend -p PORT CHANNEL MESSAGE  (or: wbtvsend -p PORT --time)")
	}

	node.StringSend(args[0], args[1])
	log.Info("Sent", "channel", args[0], "bytes", len(args[1]))
}
