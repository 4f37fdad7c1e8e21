package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/garden-pi/garden-pi/controller/daemon"
)

func main() {
	configFile := flag.String("config", "", "yaml configuration file")
	devMode := flag.Bool("dev", false, "run with simulated GPIO pins")
	flag.Parse()

	conf := daemon.DefaultConfig()
	if *configFile != "" {
		var err error
		conf, err = daemon.ParseConfig(*configFile)
		if err != nil {
			log.Fatalln("failed to load config:", err)
		}
	}
	if *devMode {
		conf.DevMode = true
	}

	g, err := daemon.New(conf)
	if err != nil {
		log.Fatalln("failed to initialize:", err)
	}
	if err := g.Start(); err != nil {
		log.Fatalln("failed to start:", err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Println("shutting down")
	g.Stop()
}
