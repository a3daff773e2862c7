package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"routermon/config"
	"routermon/device/hilink"
)

const routerHttpPort = 80

func main() {
	var configs = loadConfig()

	var signals = make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT)
	var shouldExit = make(chan bool, 1)
	go func() { <-signals; println("Received SIGINT"); close(shouldExit) }()
	var allExited sync.WaitGroup
	allExited.Add(len(configs.Routers))

	registry := prometheus.NewRegistry()
	for i := range configs.Routers {
		router := &configs.Routers[i]
		dev, err := hilink.NewDevice(configs.Credentials.Username, configs.Credentials.Password, router, registry, routerHttpPort)
		if err != nil {
			log.Fatalf("Could not initialise %s (%s): %v", router.Ip, router.Name, err)
		}
		go pollRouter(&allExited, shouldExit, dev, router.Site, router.Name)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go startHttpServer(mux, shouldExit)

	allExited.Wait()
	os.Exit(0)
}

func loadConfig() *config.AppConfig {
	if _, err := os.Stat("config/exampleRouterManifest.yaml"); err != nil {
		println("No router manifest found, using the default single-router config")
		defaults := config.DefaultAppConfig
		return &defaults
	}
	return config.ReadConfigAndCredentials()
}

func startHttpServer(mux *http.ServeMux, shouldExit chan bool) {
	server := http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadTimeout:       1500 * time.Millisecond,
		ReadHeaderTimeout: 500 * time.Millisecond,
		WriteTimeout:      2000 * time.Second,
	}
	println("Listening on 8080")
	go func() {
		<-shouldExit
		println("Received signal to shut down http server")
		if err := server.Shutdown(context.Background()); err != nil {
			println(err.Error())
		}
	}()
	log.Println(server.ListenAndServe())
	close(shouldExit)
}

func pollRouter(allExited *sync.WaitGroup, shouldExit <-chan bool, dev *hilink.Device, site, name string) {
	println("Starting ticker for polling", site, name)
	defer allExited.Done()
	ticker := time.NewTicker(30 * time.Second)
	for {
		select {
		case <-shouldExit:
			println("Received should exit signal for", site, name)
			ticker.Stop()
			return
		case <-ticker.C:
			time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)
			if err := dev.PollRouterAndUpdateMetrics(); err != nil {
				println("Could not query", site, name, err.Error())
				dev.ResetMetricsToRogueValues()
			}
		}
	}
}
