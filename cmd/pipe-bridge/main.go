package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tarm/serial"

	"leakwatch/internal/bridge"
)

func main() {
	_ = godotenv.Load()

	port := flag.String("port", "/dev/ttyUSB0", "Serial port the pipe sensors write to")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	gateway := flag.String("gateway", "http://localhost:8080", "Gateway data server URL")
	key := flag.String("key", os.Getenv("LEAKWATCH_INGEST_KEY"), "Ingest API key")
	sim := flag.Bool("sim", false, "Send simulated readings instead of reading the serial port")
	pipes := flag.String("pipes", "Room1/Pipe1,Room1/Pipe2,Room6/Pipe2", "Pipes to simulate")
	every := flag.Duration("every", 2*time.Second, "Interval between simulated readings")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bridge.NewClient(*gateway, *key)

	if *sim {
		keys, err := bridge.ParsePipes(*pipes)
		if err != nil {
			log.Fatalf("[bridge] %v", err)
		}
		runSimulator(ctx, client, bridge.NewSimulator(keys, time.Now().UnixNano()), *every)
		return
	}

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		log.Fatalf("[bridge] open %s: %v", *port, err)
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	log.Printf("[bridge] reading %s at %d baud, forwarding to %s", *port, *baud, *gateway)

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p, err := bridge.ParseLine(line, time.Now())
		if err != nil {
			log.Printf("[bridge] skipping %q: %v", line, err)
			continue
		}
		forward(ctx, client, p)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Fatalf("[bridge] serial read: %v", err)
	}
}

func runSimulator(ctx context.Context, client *bridge.Client, sim *bridge.Simulator, every time.Duration) {
	log.Printf("[bridge] simulating %d pipes every %s", len(sim.Pipes), every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			forward(ctx, client, sim.Next(now))
		}
	}
}

func forward(ctx context.Context, client *bridge.Client, p bridge.Payload) {
	res, err := client.Send(ctx, p)
	if err != nil {
		log.Printf("[bridge] %v", err)
		return
	}
	log.Printf("[bridge] %s -> score %d %v", p, res.Score, res.Flags)
}
