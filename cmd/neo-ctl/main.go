// neo-ctl reads or changes a neo device setting.
//
//	neo-ctl [-baud N] <device> get motor_speed|sample_rate
//	neo-ctl [-baud N] <device> set motor_speed|sample_rate <value>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/serialport"
)

var baudRate = flag.Int("baud", 115200, "Baud rate")

const usage = "neo-ctl [-baud N] <device> get|set motor_speed|sample_rate [value]"

var errUsage = errors.New("usage: " + usage)

// request is a parsed command line.
type request struct {
	device  string
	set     bool
	setting string
	value   int
}

func parseArgs(args []string) (request, error) {
	if len(args) < 3 {
		return request{}, errUsage
	}
	req := request{device: args[0], setting: args[2]}
	switch args[1] {
	case "get":
		if len(args) != 3 {
			return request{}, errUsage
		}
	case "set":
		if len(args) != 4 {
			return request{}, errUsage
		}
		v, err := strconv.Atoi(args[3])
		if err != nil {
			return request{}, fmt.Errorf("invalid value %q: %w", args[3], err)
		}
		req.set, req.value = true, v
	default:
		return request{}, errUsage
	}
	if req.setting != "motor_speed" && req.setting != "sample_rate" {
		return request{}, fmt.Errorf("unknown setting %q, want motor_speed or sample_rate", req.setting)
	}
	return req, nil
}

// execute applies req to dev and prints the resulting value.
func execute(ctx context.Context, dev *neo.Device, req request, out io.Writer) error {
	if req.set {
		var err error
		if req.setting == "motor_speed" {
			err = dev.SetMotorSpeed(ctx, req.value)
		} else {
			err = dev.SetSampleRate(ctx, req.value)
		}
		if err != nil {
			return err
		}
	}

	var v int
	var err error
	if req.setting == "motor_speed" {
		v, err = dev.GetMotorSpeed(ctx)
	} else {
		v, err = dev.GetSampleRate(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d Hz\n", req.setting, v)
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	req, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := neo.Open(ctx, req.device, serialport.PortOptions{BaudRate: *baudRate}, neo.DefaultOptions())
	if err != nil {
		log.Fatalf("failed to open %s: %v", req.device, err)
	}
	runErr := execute(ctx, dev, req, os.Stdout)
	if err := dev.Close(); err != nil {
		log.Printf("failed to close device: %v", err)
	}
	if runErr != nil {
		log.Fatalf("%s: %v", req.setting, runErr)
	}
}
