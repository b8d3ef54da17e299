// Command tickgen is a synthetic market-data generator for
// load-testing a tickcapture node: it builds sealed wire.Record values
// with a per-symbol random-walk price and a single monotonically
// increasing sequence number shared across all symbols, and multicasts
// them at a configurable
// rate. It is an external collaborator of the core per spec's
// Non-goals framing — never imported by the core packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickcapture/internal/wire"
)

func main() {
	multicastAddr := flag.String("addr", "239.255.0.1", "multicast group address")
	port := flag.Int("port", 12345, "UDP port")
	numSymbols := flag.Int("symbols", 100, "number of distinct symbol_ids to simulate, starting at 1")
	rate := flag.Int("rate", 1000, "messages per second, aggregate across all symbols")
	minPrice := flag.Float64("min-price", 10.0, "minimum simulated price")
	maxPrice := flag.Float64("max-price", 1000.0, "maximum simulated price")
	volatility := flag.Float64("volatility", 0.001, "per-tick price change standard deviation, as a fraction of price")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	conn, err := dial(*multicastAddr, *port)
	if err != nil {
		log.Error("dial failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := newSimulator(*numSymbols, *minPrice, *maxPrice, *volatility)
	interval := time.Second / time.Duration(*rate)
	if interval <= 0 {
		interval = time.Microsecond
	}

	log.Info("tickgen sending",
		slog.String("addr", *multicastAddr),
		slog.Int("port", *port),
		slog.Int("symbols", *numSymbols),
		slog.Int("rate", *rate))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, dropped uint64
	for {
		select {
		case <-sigCtx.Done():
			log.Info("tickgen stopped", slog.Uint64("sent", sent), slog.Uint64("dropped", dropped))
			return
		case <-ticker.C:
			record := sim.next()
			var buf [wire.Size]byte
			wire.Encode(&record, buf[:])
			if _, err := conn.Write(buf[:]); err != nil {
				dropped++
				continue
			}
			sent++
		}
	}
}

func dial(multicastAddr string, port int) (*net.UDPConn, error) {
	group := net.ParseIP(multicastAddr)
	if group == nil {
		return nil, fmt.Errorf("invalid multicast address %q", multicastAddr)
	}
	return net.DialUDP("udp4", nil, &net.UDPAddr{IP: group, Port: port})
}

// simulator holds one random-walk price state per symbol_id and the
// single monotonically increasing sequence counter shared across every
// symbol — matching the processor's single global last_sequence (§4.5),
// which tracks one feed-wide sequence space rather than one per symbol.
type simulator struct {
	numSymbols int
	minPrice   float64
	maxPrice   float64
	volatility float64

	rng *rand.Rand

	prices   []float64
	sequence uint64
}

func newSimulator(numSymbols int, minPrice, maxPrice, volatility float64) *simulator {
	if numSymbols < 1 {
		numSymbols = 1
	}
	rng := rand.New(rand.NewSource(1))
	prices := make([]float64, numSymbols)
	for i := range prices {
		prices[i] = minPrice + rng.Float64()*(maxPrice-minPrice)
	}
	return &simulator{
		numSymbols: numSymbols,
		minPrice:   minPrice,
		maxPrice:   maxPrice,
		volatility: volatility,
		rng:        rng,
		prices:     prices,
	}
}

// next picks a symbol uniformly at random, advances its random-walk
// price and the shared sequence counter, and returns a sealed, valid
// Record.
func (s *simulator) next() wire.Record {
	idx := s.rng.Intn(s.numSymbols)
	symbolID := uint32(idx + 1)

	price := s.prices[idx] * (1 + s.volatility*s.rng.NormFloat64())
	if price <= s.minPrice {
		price = s.minPrice + 0.01
	}
	if price >= s.maxPrice {
		price = s.maxPrice - 0.01
	}
	s.prices[idx] = price

	s.sequence++

	r := wire.Record{
		SequenceNumber: s.sequence,
		Timestamp:      uint64(time.Now().UnixNano()),
		SymbolID:       symbolID,
		Type:           wire.Trade,
	}
	r.SetTrade(wire.TradeBody{
		Price: price,
		Size:  uint32(100 + s.rng.Intn(9900)),
	})
	wire.Seal(&r)
	return r
}
