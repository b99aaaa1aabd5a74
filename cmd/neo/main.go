package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/neo.lidar/internal/config"
	"github.com/banshee-data/neo.lidar/internal/db"
	"github.com/banshee-data/neo.lidar/internal/monitor"
	"github.com/banshee-data/neo.lidar/internal/monitoring"
	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/scanfile"
	"github.com/banshee-data/neo.lidar/internal/scanstats"
	"github.com/banshee-data/neo.lidar/internal/serialport"
	"github.com/banshee-data/neo.lidar/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Use the built-in device simulator instead of a serial port")
	configPath  = flag.String("config", "", "Driver config file (JSON), e.g. "+config.DefaultConfigPath+"; built-in defaults when empty")
	portPath    = flag.String("port", "", "Serial port, overrides the config file (default /dev/ttyACM0)")
	baudRate    = flag.Int("baud", 0, "Baud rate, overrides the config file")
	scanCount   = flag.Int("scans", 1, "Number of scans to read; 0 reads until interrupted")
	printAll    = flag.Bool("samples", false, "Print every sample, not only the per-scan summary")
	dbPath      = flag.String("db", "", "Record sessions and scans to this sqlite database")
	recordPath  = flag.String("record", "", "Append scans to this length-delimited protobuf file")
	plotPath    = flag.String("plot", "", "Write a plot of the last scan (png, svg or pdf)")
	listen      = flag.String("listen", "", "Serve debug pages on this address, e.g. localhost:8080")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
	verbose     = flag.Bool("v", false, "Verbose driver logging")
)

const defaultPort = "/dev/ttyACM0"

// sinks receive every scan read by scanLoop. Nil members are skipped.
type sinks struct {
	out     io.Writer
	samples bool
	db      *db.DB
	record  *scanfile.Writer
	monitor *monitor.Monitor
}

// scanLoop reads up to n scans (forever when n is 0) and hands each to the
// sinks. It returns the last scan read. Cancellation of ctx ends the loop
// without error.
func scanLoop(ctx context.Context, dev *neo.Device, n int, s sinks) (neo.Scan, int, error) {
	var last neo.Scan
	read := 0
	for n == 0 || read < n {
		scan, err := dev.GetScan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, read, nil
			}
			return last, read, err
		}
		read++
		last = scan

		fmt.Fprintf(s.out, "scan %d: %s\n", scan.Sequence, scanstats.Summarize(scan))
		if s.samples {
			for _, smp := range scan.Samples {
				fmt.Fprintf(s.out, "  angle %7.3f  distance %5d cm\n", smp.Angle, smp.Distance)
			}
		}
		if s.db != nil {
			if err := s.db.RecordScan(scan); err != nil {
				log.Printf("failed to record scan: %v", err)
			}
		}
		if s.record != nil {
			if err := s.record.Write(scan); err != nil {
				return last, read, fmt.Errorf("write scan file: %w", err)
			}
		}
		if s.monitor != nil {
			s.monitor.Observe(scan)
		}
	}
	return last, read, nil
}

// applySettings sets the motor speed and sample rate requested by the config.
func applySettings(ctx context.Context, dev *neo.Device, cfg *config.DriverConfig) error {
	if hz, ok := cfg.GetMotorSpeedHz(); ok {
		if err := dev.SetMotorSpeed(ctx, hz); err != nil {
			return err
		}
	}
	if hz, ok := cfg.GetSampleRateHz(); ok {
		if err := dev.SetSampleRate(ctx, hz); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig() *config.DriverConfig {
	cfg := config.DefaultDriverConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadDriverConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *portPath != "" {
		cfg.Port = portPath
	}
	if *baudRate != 0 {
		cfg.BaudRate = baudRate
	}
	return cfg
}

func openDevice(ctx context.Context, cfg *config.DriverConfig) (*neo.Device, string) {
	opts := neo.OptionsFromConfig(cfg)
	if *devMode {
		// The simulator settles and calibrates instantly.
		opts.MotorSettleTime = time.Millisecond
		opts.CalibrationWait = time.Millisecond
		sim := neo.NewSimulator(neo.SimulatorConfig{PacketInterval: 2 * time.Millisecond})
		dev, err := neo.New(ctx, sim, opts)
		if err != nil {
			log.Fatalf("failed to start simulator: %v", err)
		}
		return dev, "simulator"
	}

	path := cfg.GetPort()
	if path == "" {
		path = defaultPort
	}
	dev, err := neo.Open(ctx, path, cfg.PortOptions(), opts)
	if err != nil {
		log.Fatalf("failed to open device: %v", err)
	}
	return dev, path
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("neo", version.String())
		return
	}
	if flag.Arg(0) == "migrate" {
		if *dbPath == "" {
			log.Fatal("migrate requires -db")
		}
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], *dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if *listPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *scanCount < 0 {
		log.Fatal("-scans must not be negative")
	}
	monitoring.Verbose = *verbose

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, port := openDevice(ctx, cfg)
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("failed to close device: %v", err)
		}
	}()

	if err := applySettings(ctx, dev, cfg); err != nil {
		log.Fatalf("failed to configure device: %v", err)
	}
	motorHz, err := dev.GetMotorSpeed(ctx)
	if err != nil {
		log.Fatalf("failed to read motor speed: %v", err)
	}
	rateHz, err := dev.GetSampleRate(ctx)
	if err != nil {
		log.Fatalf("failed to read sample rate: %v", err)
	}
	if info, err := dev.VersionInfo(ctx); err == nil {
		log.Printf("device %s: %s, motor %d Hz, %d samples/s", port, info, motorHz, rateHz)
	} else {
		log.Printf("failed to read version info: %v", err)
	}

	s := sinks{out: os.Stdout, samples: *printAll}

	var store *db.DB
	if *dbPath != "" {
		if store, err = db.NewDB(*dbPath); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		s.db = store
	}

	if *recordPath != "" {
		f, err := os.OpenFile(*recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open record file: %v", err)
		}
		defer f.Close()
		s.record = scanfile.NewWriter(f)
		defer func() {
			if err := s.record.Flush(); err != nil {
				log.Printf("failed to flush record file: %v", err)
			}
			log.Printf("recorded %d scans to %s", s.record.Count(), *recordPath)
		}()
	}

	var wg sync.WaitGroup
	if *listen != "" {
		s.monitor = monitor.New(dev.Stats)
		mux := http.NewServeMux()
		s.monitor.AttachAdminRoutes(mux)
		if store != nil {
			store.AttachAdminRoutes(mux)
		}
		server := &http.Server{Addr: *listen, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("debug pages on http://%s/debug/", *listen)

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	if err := dev.StartScanning(ctx); err != nil {
		log.Fatalf("failed to start scanning: %v", err)
	}
	session := dev.Stats().Session
	if store != nil {
		err := store.StartSession(db.Session{ID: session, Port: port, MotorHz: motorHz, SampleRateHz: rateHz, StartedAt: time.Now()})
		if err != nil {
			log.Fatalf("failed to record session: %v", err)
		}
	}

	last, n, loopErr := scanLoop(ctx, dev, *scanCount, s)
	if loopErr != nil {
		log.Printf("scanning ended: %v", loopErr)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GetCloseTimeout())
	if err := dev.StopScanning(stopCtx); err != nil {
		log.Printf("failed to stop scanning: %v", err)
	}
	cancel()
	if store != nil {
		if err := store.EndSession(session, time.Now()); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}
	log.Printf("read %d scans, %+v", n, dev.Stats().Codec)

	if *plotPath != "" && n > 0 {
		if err := scanstats.SavePlot(last, *plotPath); err != nil {
			log.Printf("failed to plot scan: %v", err)
		} else {
			log.Printf("plotted scan %d to %s", last.Sequence, *plotPath)
		}
	}

	// The debug server keeps serving after a finite run until interrupted.
	if *listen != "" && ctx.Err() == nil {
		log.Printf("scan complete, serving debug pages until interrupted")
	}
	wg.Wait()
}
