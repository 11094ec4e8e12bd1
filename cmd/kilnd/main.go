// Command kilnd is the control-core daemon: it wires the acquisition,
// control, persistence, and telemetry packages into a running Oven and
// serves the HTTP command surface over it.
//
// Environment Variables (see internal/config for the full list):
// KILN_TEMP_DEV_FILE       - device file to poll for temperature, simulator if unset
// KILN_RELAY_DEV_FILE      - device file to drive the relay, simulator if unset
// KILN_SENSOR_NATIVE_UNIT  - unit the temperature device reports in (c|f, default c)
// KILN_HTTP_PORT           - port to serve HTTP traffic on
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"module/internal/actuator"
	"module/internal/config"
	"module/internal/firinglog"
	"module/internal/httpapi"
	"module/internal/metrics"
	"module/internal/oven"
	"module/internal/persist"
	"module/internal/pidctl"
	"module/internal/profilestore"
	"module/internal/telemetry"
	"module/internal/tempsensor"
	"module/internal/wsfanout"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	name := os.Args[0]
	errLog := log.New(os.Stderr, name+" ERROR: ", log.LstdFlags|log.Lshortfile)
	infoLog := log.New(os.Stdout, name+" INFO: ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		errLog.Fatalf("config: %s\n", err.Error())
	}

	wg := &sync.WaitGroup{}

	var dev tempsensor.Device
	var relay actuator.Relay
	var simDevice *tempsensor.SimulatedDevice
	nativeUnit := config.Celsius
	if v := os.Getenv("KILN_SENSOR_NATIVE_UNIT"); v != "" {
		nativeUnit = config.TemperatureUnit(v)
	}

	if cfg.TempDevFile != "" {
		fd, err := tempsensor.OpenFileDevice(cfg.TempDevFile)
		if err != nil {
			errLog.Fatalf("temperature device: %s\n", err.Error())
		}
		dev = fd
	} else {
		infoLog.Println("no KILN_TEMP_DEV_FILE set, running against the simulated temperature device")
		startTemp := 70.0
		if cfg.TemperatureUnit == config.Celsius {
			startTemp = 21.0
		}
		sd := tempsensor.NewSimulatedDevice(startTemp)
		simDevice = sd
		dev = sd
		nativeUnit = cfg.TemperatureUnit
	}

	if cfg.RelayDevFile != "" {
		fr, err := actuator.OpenFileRelay(cfg.RelayDevFile)
		if err != nil {
			errLog.Fatalf("relay device: %s\n", err.Error())
		}
		relay = fr
	} else {
		infoLog.Println("no KILN_RELAY_DEV_FILE set, running against the simulated relay")
		relay = &actuator.SimulatedRelay{}
	}

	sensor := tempsensor.New(dev, cfg.TemperatureUnit, nativeUnit, cfg.ThermocoupleOffset,
		cfg.SmoothingWindowSize, cfg.TickInterval, cfg.EmergencyOverTemp, 0.5, infoLog, errLog)

	act := actuator.New(relay, cfg.TickInterval, infoLog, errLog)
	pid := pidctl.New(cfg.Kp, cfg.Ki, cfg.Kd, cfg.OutputWindow, infoLog, errLog)

	profiles := profilestore.New(cfg.ProfileDir, infoLog, errLog)
	defer profiles.Close()

	store := persist.NewStore(cfg.SnapshotPath, infoLog, errLog)
	logs := firinglog.NewWriter(cfg.LogDir, infoLog, errLog)

	coll := metrics.NewCollector(prometheus.DefaultRegisterer)

	fanout := telemetry.NewFanout(func(s telemetry.Snapshot) ([]byte, error) {
		return json.Marshal(s)
	}, infoLog, errLog)
	wg.Add(1)
	go func() { defer wg.Done(); fanout.Run() }()

	ov := oven.New(oven.Options{
		Config:    cfg,
		Sensor:    sensor,
		SimDevice: simDevice,
		Actuator:  act,
		PID:       pid,
		Profiles:  profiles,
		Persist:   store,
		Logs:      logs,
		Fanout:    fanout,
		Metrics:   coll,
		InfoLog:   infoLog,
		ErrLog:    errLog,
	})

	wg.Add(1)
	go func() { defer wg.Done(); ov.Run() }()

	acqStop := make(chan struct{})
	wg.Add(1)
	go runAcquisition(sensor, cfg.TickInterval, acqStop, wg)

	wsHandler := wsfanout.NewHandler(fanout, infoLog, errLog)
	srv := httpapi.NewServer(ov, profiles, logs, wsHandler, infoLog, errLog)

	httpSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: srv}
	infoLog.Printf("starting HTTP server; listening on port %s\n", cfg.HTTPPort)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errLog.Printf("error from http server: %s\n", err.Error())
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	infoLog.Printf("received kill signal\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	close(acqStop)
	ov.Close()
	fanout.Stop()
	wg.Wait()
	os.Exit(0)
}

// runAcquisition drives TempSensor.Poll on its own cadence (§5),
// independent of the control tick that reads the sensor's latest
// read-through value.
func runAcquisition(sensor *tempsensor.TempSensor, interval time.Duration, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sensor.Poll(now)
		case <-stop:
			return
		}
	}
}
