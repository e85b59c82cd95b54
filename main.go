// sramlab is the lab monitor server: it records UART entropy streams from
// TRNG firmware, serves the capture database, and renders analysis reports.
package main

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/api"
	"github.com/hwsec-lab/sramlab/internal/serialmux"
	"github.com/hwsec-lab/sramlab/internal/version"
)

var (
	devMode  = flag.Bool("dev", false, "Run in dev mode (synthetic entropy source instead of a UART device)")
	listen   = flag.String("listen", ":8080", "Listen address")
	dbFile   = flag.String("db", "sramlab.db", "Path to the sqlite database")
	uartPath = flag.String("uart", "", "UART device streaming TRNG output (empty disables UART capture)")
	uartBaud = flag.Int("uart-baud", 115200, "UART baud rate")

	captureBytes = flag.Int("uart-capture-bytes", 0, "Record a UART capture session of this many bytes on startup (0 disables)")
	captureDir   = flag.String("uart-capture-dir", "captures", "Directory for UART capture files")
)

// devEntropyPort feeds the mux from crypto/rand so the full pipeline can run
// without hardware.
type devEntropyPort struct{}

func (devEntropyPort) Read(p []byte) (int, error) {
	time.Sleep(100 * time.Millisecond)
	if len(p) > 512 {
		p = p[:512]
	}
	return crand.Read(p)
}

func (devEntropyPort) Write(p []byte) (int, error) { return len(p), nil }
func (devEntropyPort) Close() error                { return nil }

// recordUARTCapture collects n bytes from the stream, writes them to a file,
// and records the session in the database.
func recordUARTCapture(ctx context.Context, m serialmux.Muxer, database *db.DB, dir string, n int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	data, err := m.Collect(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to collect %d bytes: %w", n, err)
	}

	session := &db.Session{
		Label:  fmt.Sprintf("uart capture %s", time.Now().Format("2006-01-02--15-04-05")),
		Source: "uart",
		Rounds: 1,
	}
	if err := database.InsertSession(session); err != nil {
		return err
	}

	path := filepath.Join(dir, session.SessionID+".bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}

	sum := sha256.Sum256(data)
	readout := &db.Readout{
		SessionID: session.SessionID,
		Path:      path,
		SizeBytes: int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
	}
	if err := database.InsertReadout(readout); err != nil {
		return err
	}

	log.Printf("recorded UART capture session %s (%d bytes) at %s", session.SessionID, len(data), path)
	return nil
}

func main() {
	flag.Parse()

	log.Printf("sramlab %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var m serialmux.Muxer
	switch {
	case *devMode:
		m = serialmux.NewMux(devEntropyPort{})
	case *uartPath != "":
		opts := serialmux.PortOptions{BaudRate: *uartBaud}
		mux, err := serialmux.NewRealMux(*uartPath, opts)
		if err != nil {
			log.Fatalf("failed to open UART device %s: %v", *uartPath, err)
		}
		m = mux
	}
	if m != nil {
		defer m.Close()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Wait group for the HTTP server, stream monitor, and capture routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if m != nil {
		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		if *captureBytes > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := recordUARTCapture(ctx, m, database, *captureDir, *captureBytes); err != nil && ctx.Err() == nil {
					log.Printf("UART capture failed: %v", err)
				}
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		if m != nil {
			m.AttachAdminRoutes(mux)
		}

		var uart api.UARTController
		if m != nil {
			uart = m
		}
		apiMux := api.NewServer(database, uart, nil).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "sramlab monitor: see /api/sessions and /debug/")
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
