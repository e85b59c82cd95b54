// Package serialmux multiplexes a serial port carrying a raw entropy stream.
// TRNG firmware writes bytes continuously; multiple consumers (capture jobs,
// debug tails) subscribe to chunks without stealing data from each other.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// readChunkSize is the size of each raw read from the port. Chunks delivered
// to subscribers are at most this large.
const readChunkSize = 4096

// subscriberBuffer is the channel depth per subscriber. A consumer that falls
// further behind than this drops chunks rather than stalling the read loop.
const subscriberBuffer = 64

// Mux fans out a serial port's byte stream to any number of subscribers and
// serialises command writes back to the device.
type Mux[T Porter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	statsMu   sync.Mutex
	bytesRead int64
	chunks    int64
	dropped   int64
}

// Muxer is the consumer-facing interface of Mux.
type Muxer interface {
	// Subscribe creates a new channel for receiving chunks from the serial
	// port. The channel ID identifies the channel when unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads chunks from the serial port and fans them out.
	Monitor(context.Context) error
	// Collect accumulates exactly n bytes from the stream.
	Collect(context.Context, int) ([]byte, error)
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given
	// HTTP mux served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewMux creates a Mux backed by the given port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (m *Mux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand sends a command to the serial port. TRNG firmware takes
// single-letter newline-terminated commands (start, stop, mode select).
func (m *Mux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads from the serial port and delivers chunks to subscribers.
// Each subscriber gets its own copy; a subscriber with a full channel drops
// the chunk rather than blocking the read loop.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// The blocking port.Read runs in its own goroutine so the outer loop
	// can await chunks and context cancellation together.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, readChunkSize)
		for {
			n, err := m.port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case chunk, ok := <-chunkChan:
			if !ok {
				return nil
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.statsMu.Lock()
			m.bytesRead += int64(len(chunk))
			m.chunks++
			m.statsMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- chunk:
				default:
					m.statsMu.Lock()
					m.dropped++
					m.statsMu.Unlock()
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Collect subscribes to the stream and accumulates exactly n bytes. A closed
// mux or cancelled context aborts the collection.
func (m *Mux[T]) Collect(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("byte count must be positive, got %d", n)
	}

	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)

	buf := make([]byte, 0, n)
	for len(buf) < n {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("stream closed after %d of %d bytes", len(buf), n)
			}
			buf = append(buf, chunk...)
		}
	}
	return buf[:n], nil
}

// Stats is a snapshot of the mux's stream counters.
type Stats struct {
	BytesRead     int64 `json:"bytes_read"`
	Chunks        int64 `json:"chunks"`
	DroppedChunks int64 `json:"dropped_chunks"`
	Subscribers   int   `json:"subscribers"`
}

func (m *Mux[T]) Stats() Stats {
	m.statsMu.Lock()
	s := Stats{BytesRead: m.bytesRead, Chunks: m.chunks, DroppedChunks: m.dropped}
	m.statsMu.Unlock()

	m.subscriberMu.Lock()
	s.Subscribers = len(m.subscribers)
	m.subscriberMu.Unlock()
	return s
}

func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}

func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("uart-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Stats())
	})

	// API endpoint to write a command to the serial port
	debug.HandleSilentFunc("uart-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := r.FormValue("command")
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Side Events hex dump of the live stream.
	debug.HandleSilentFunc("uart-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				if len(chunk) > 32 {
					chunk = chunk[:32]
				}
				_, err := fmt.Fprintf(w, "data: %s\n\n", hex.EncodeToString(chunk))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
