package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/ride-pilot/internal/bt"
	"github.com/lowaak/ride-pilot/internal/engine"
	"github.com/lowaak/ride-pilot/internal/persist"
	"github.com/lowaak/ride-pilot/internal/profile"
	"github.com/lowaak/ride-pilot/internal/sim"
	"github.com/lowaak/ride-pilot/internal/ui"
)

const scanWaitTimeout = 30 * time.Second

func main() {
	dataDir := persist.DefaultDir()

	pflag.Int("ftp", engine.DefaultFTP, "rider FTP in watts")
	pflag.String("workout", "", "workout from the catalog to preload")
	pflag.Bool("simulate", false, "ride a simulated trainer instead of BLE hardware")
	pflag.String("trainer-address", "", "BLE address of the smart trainer")
	pflag.String("hr-address", "", "BLE address of the heart-rate strap (optional)")
	pflag.String("log-file", filepath.Join(dataDir, "ride-pilot.log"), "log file path")
	pflag.Parse()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dataDir)
	viper.SetEnvPrefix("RIDEPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	must("bind flags", viper.BindPFlags(pflag.CommandLine))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			must("read config", err)
		}
	}

	rotating := &lumberjack.Logger{
		Filename:   viper.GetString("log-file"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	defer rotating.Close()
	logger := log.New(rotating, "", log.LstdFlags)
	logger.Println("ride-pilot starting")

	view, err := ui.NewView(logger)
	must("create UI", err)
	// Mirror the log into the UI's log pane once it exists.
	logger.SetOutput(io.MultiWriter(rotating, view.LogWriter()))

	store := persist.NewFileStore(dataDir, logger)

	var (
		transport  engine.Transport
		simTrainer *sim.Trainer
		link       *bt.Link
		manager    *bt.Manager
	)
	if viper.GetBool("simulate") {
		simTrainer = sim.NewTrainer(logger)
		transport = simTrainer
	} else {
		trainerAddr := viper.GetString("trainer-address")
		if trainerAddr == "" {
			fmt.Fprintln(os.Stderr, "no --trainer-address given; use --simulate to ride without hardware")
			os.Exit(1)
		}
		manager = bt.NewManager(bluetooth.DefaultAdapter, logger, 30*time.Second)
		must("enable BLE stack", manager.Enable())
		link = bt.NewLink(manager, logger)
		transport = link
	}

	eng := engine.New(transport, view, store, logger)
	view.Attach(eng, simTrainer)

	if simTrainer != nil {
		simTrainer.Start(eng)
	} else {
		link.Start(eng)
		manager.StartScan([]string{bt.ServiceUUIDFTMS, bt.ServiceUUIDHeartRate})
		must("find trainer", waitForDevice(manager, viper.GetString("trainer-address")))
		must("connect trainer", link.ConnectTrainer(viper.GetString("trainer-address")))
		if hrAddr := viper.GetString("hr-address"); hrAddr != "" {
			if err := waitForDevice(manager, hrAddr); err != nil {
				logger.Printf("heart-rate strap not found: %v", err)
			} else if err := link.ConnectHeartRate(hrAddr); err != nil {
				logger.Printf("heart-rate strap connect failed: %v", err)
			}
		}
		if err := manager.StopScan(); err != nil {
			logger.Printf("error stopping scan: %v", err)
		}
	}

	if eng.RestoreSession() {
		logger.Println("previous session restored, paused; pedal or press Space to resume")
	} else {
		eng.SetFTP(viper.GetInt("ftp"))
		if name := viper.GetString("workout"); name != "" {
			if p, ok := profile.CatalogByName(name); ok {
				must("load workout", eng.SetProfile(p))
			} else {
				logger.Printf("unknown workout %q, pick one in the UI", name)
			}
		}
	}

	runErr := view.Run()

	eng.Shutdown()
	if simTrainer != nil {
		simTrainer.Shutdown()
	}
	if link != nil {
		link.Shutdown()
	}
	if manager != nil {
		manager.Shutdown()
	}
	logger.Println("ride-pilot stopped")
	must("run UI", runErr)
}

// waitForDevice blocks until the address shows up in scan results.
func waitForDevice(manager *bt.Manager, address string) error {
	ch := make(chan []*bt.Device, 4)
	unsub := manager.ScanDevicesChanged().SubscribeChan(ch)
	defer unsub()

	deadline := time.After(scanWaitTimeout)
	for {
		select {
		case devices := <-ch:
			for _, d := range devices {
				if d.Address() == address {
					return nil
				}
			}
		case <-deadline:
			return fmt.Errorf("device %s not seen within %v", address, scanWaitTimeout)
		}
	}
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
