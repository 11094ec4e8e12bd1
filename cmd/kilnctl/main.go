// Command kilnctl is the command-line client for kilnd: it issues
// start/stop/pause/resume commands, reads back the current state, and
// can follow the live telemetry stream over WebSocket.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
)

func main() {
	var follow bool
	var host string
	var start string
	var stop, pause, resume, state, profiles bool
	var simulate float64

	infoLog := log.New(os.Stdout, "", 0)
	errLog := log.New(os.Stderr, "", log.LstdFlags)

	flag.BoolVar(&follow, "f", false, "follow live telemetry over the WebSocket stream")
	flag.StringVar(&host, "h", "127.0.0.1:8081", "host:port of the kilnd instance")
	flag.StringVar(&start, "start", "", "start a firing using the named profile")
	flag.BoolVar(&stop, "stop", false, "abort the current firing")
	flag.BoolVar(&pause, "pause", false, "pause the current firing")
	flag.BoolVar(&resume, "resume", false, "resume a paused firing")
	flag.BoolVar(&state, "state", false, "print the current telemetry snapshot")
	flag.BoolVar(&profiles, "profiles", false, "list known profiles")
	flag.Float64Var(&simulate, "simulate-temp", -1.0, "set the simulated temperature device reading (negative values are ignored)")
	flag.Parse()

	switch {
	case start != "":
		post(host, "/start?profile="+url.QueryEscape(start), infoLog, errLog)
	case stop:
		post(host, "/stop", infoLog, errLog)
	case pause:
		post(host, "/pause", infoLog, errLog)
	case resume:
		post(host, "/resume", infoLog, errLog)
	case simulate >= 0.0:
		post(host, fmt.Sprintf("/simulate-temp?value=%.2f", simulate), infoLog, errLog)
	case profiles:
		get(host, "/profiles", infoLog, errLog)
	case state:
		get(host, "/state", infoLog, errLog)
	}

	if !follow {
		return
	}

	dialer := &websocket.Dialer{}
	conn, _, err := dialer.Dial("ws://"+host+"/ws", nil)
	if err != nil {
		errLog.Fatalf("error while dialing websocket connection: %s\n", err.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errLog.Printf("error while reading websocket message: %s\n", err.Error())
				return
			}
			infoLog.Println(string(data))
		}
	}()

	<-sig
	conn.Close()
	wg.Wait()
	os.Exit(0)
}

func post(host, path string, infoLog, errLog *log.Logger) {
	resp, err := http.Post("http://"+host+path, "application/json", nil)
	if err != nil {
		errLog.Fatalf("error while issuing request: %s\n", err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		errLog.Fatalf("request failed: %s: %s\n", resp.Status, string(body))
	}
	infoLog.Println("ok")
}

func get(host, path string, infoLog, errLog *log.Logger) {
	resp, err := http.Get("http://" + host + path)
	if err != nil {
		errLog.Fatalf("error while issuing request: %s\n", err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errLog.Fatalf("error while reading response: %s\n", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		errLog.Fatalf("request failed: %s: %s\n", resp.Status, string(body))
	}
	infoLog.Println(string(body))
}
