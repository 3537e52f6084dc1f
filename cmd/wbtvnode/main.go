/* WBTV bus node daemon: attach to a port, print traffic, keep time. */
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	wbtv "github.com/eternityforest/wbtv/src"
)

func main() {
	var configFile = pflag.StringP("config", "c", "", "YAML configuration file")
	var port = pflag.StringP("port", "p", "", "Serial device, e.g. /dev/ttyUSB0 (overrides config)")
	var speed = pflag.IntP("speed", "s", 9600, "Serial port speed")
	var stdio = pflag.Bool("stdio", false, "Tunnel the bus over stdin/stdout instead of a serial port")
	var listPorts = pflag.Bool("list-ports", false, "List candidate serial devices and exit")
	var logDir = pflag.StringP("log-dir", "l", "", "Append received frames to daily CSV files in this directory")
	var logFile = pflag.StringP("log-file", "L", "", "Append received frames to this CSV file")
	var timeBeacon = pflag.Int("time-beacon", 0, "Broadcast TIME every n seconds (enables clock discipline)")
	var verbose = pflag.BoolP("verbose", "v", false, "Debug logging")
	pflag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if *listPorts {
		var ports, err = wbtv.ListSerialPorts()
		if err != nil {
			log.Fatal("Could not enumerate serial ports", "err", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	var config = &wbtv.Config{Speed: *speed}
	if *configFile != "" {
		var c, err = wbtv.ReadConfig(*configFile)
		if err != nil {
			log.Fatal("Bad configuration", "err", err)
		}
		config = c
	}

	if *port != "" {
		config.Port = *port
	}
	if *logDir != "" {
		config.LogDir = *logDir
	}
	if *logFile != "" {
		config.LogFile = *logFile
	}
	if *timeBeacon > 0 {
		config.TimeBeaconSeconds = *timeBeacon
		config.AdvMode = true
	}

	var node, port_io = open_node(config, *stdio)

	var frame_log *wbtv.FrameLog
	if config.LogDir != "" || config.LogFile != "" {
		var l, err = wbtv.OpenFrameLog(config.LogDir != "", config.LogDir+config.LogFile)
		if err != nil {
			log.Fatal("Could not open frame log", "err", err)
		}
		frame_log = l
		defer frame_log.Close()
	}

	node.SetBinaryCallback(func(channel []byte, data []byte) {
		log.Info("Frame", "channel", string(channel), "len", len(data), "data", string(data))

		if frame_log != nil {
			var clock = wbtv.Time{Error: wbtv.CLOCK_ERROR_NEVER_SET}
			if node.Clock() != nil {
				clock = node.Clock().GetTime()
			}
			if err := frame_log.Write(channel, data, clock); err != nil {
				log.Error("Frame log write failed", "err", err)
			}
		}
	})

	var stop = make(chan struct{})
	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		close(stop)
	}()

	log.Info("WBTV node running", "port", config.Port, "wired_or", config.WiredOR)

	// The node is single threaded: Service and SendTime must share
	// one loop, so the beacon is folded in here rather than run
	// from a ticker goroutine.
	var beacon_interval = time.Duration(config.TimeBeaconSeconds) * time.Second
	var next_beacon = time.Now().Add(beacon_interval)

	for {
		select {
		case <-stop:
			return
		default:
		}

		node.Service()

		if beacon_interval > 0 && time.Now().After(next_beacon) {
			node.SendTime()
			log.Debug("TIME beacon sent")
			next_beacon = time.Now().Add(beacon_interval)
		}

		if !port_io.Available() {
			wbtv.SLEEP_MS(1)
		}
	}
}

// open_node builds the node from the configured capabilities.
func open_node(config *wbtv.Config, stdio bool) (*wbtv.WBTVNode, wbtv.ByteIO) {
	var opts = config.Options()

	if stdio {
		var port = wbtv.NewStdioPort()
		return wbtv.NewFullDuplexNode(port, nil, opts), port
	}

	if config.Port == "" {
		log.Fatal("No port configured; use --port, --stdio or a config file")
	}

	var port, err = wbtv.OpenSerialPort(config.Port, config.Speed)
	if err != nil {
		log.Fatal("Could not open port", "err", err)
	}

	if !config.WiredOR {
		return wbtv.NewFullDuplexNode(port, nil, opts), port
	}

	var sense, senseErr = wbtv.OpenSenseLine(config.SenseChip, config.SenseLine, config.SenseIdleHigh)
	if senseErr != nil {
		log.Fatal("Could not open sense line", "err", senseErr)
	}

	return wbtv.NewBusNode(port, sense, nil, opts), port
}
