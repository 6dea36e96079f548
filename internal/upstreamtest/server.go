// Package upstreamtest provides a scripted upstream HTTP server for gateway
// tests.
package upstreamtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response defines one scripted reply.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string

	// Delay is applied before headers are written.
	Delay time.Duration

	// StreamChunks are written and flushed one by one after headers.
	StreamChunks []string
	// ChunkDelay separates stream chunks.
	ChunkDelay time.Duration

	// Hangup closes the connection without writing a response.
	Hangup bool

	// Break closes the connection after Body is written, so a declared
	// Content-Length larger than Body leaves the response short.
	Break bool

	// Block holds the response open until the request context is done,
	// after writing headers and any StreamChunks.
	Block bool
}

// Received is a request seen by the server.
type Received struct {
	Method   string
	Path     string
	// RawPath is the path as escaped on the wire.
	RawPath  string
	RawQuery string
	Header   http.Header
	Body     string
}

// Server replays its script in order; the last response repeats once the
// script is used up.
type Server struct {
	server *httptest.Server

	mu       sync.Mutex
	script   []Response
	received []Received
}

// New starts a server with the given script. An empty script answers 200
// with an empty body.
func New(script ...Response) *Server {
	s := &Server{script: script}
	s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.CloseClientConnections()
	s.server.Close()
}

// SetScript replaces the remaining script.
func (s *Server) SetScript(script ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = script
}

// Count returns the number of requests received.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Requests returns copies of the requests received so far.
func (s *Server) Requests() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// Last returns the most recent request.
func (s *Server) Last() (Received, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return Received{}, false
	}
	return s.received[len(s.received)-1], true
}

func (s *Server) next(r *http.Request, body []byte) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, Received{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawPath:  r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     string(body),
	})

	if len(s.script) == 0 {
		return Response{StatusCode: http.StatusOK}
	}
	resp := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return resp
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	resp := s.next(r, body)

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if resp.Hangup {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("upstreamtest: hijacking not supported")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}

	rc := http.NewResponseController(w)
	if resp.Break {
		_ = rc.Flush()
		if conn, _, err := rc.Hijack(); err == nil {
			conn.Close()
		}
		return
	}

	for i, chunk := range resp.StreamChunks {
		if i > 0 && resp.ChunkDelay > 0 {
			select {
			case <-time.After(resp.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		_ = rc.Flush()
	}

	if resp.Block {
		_ = rc.Flush()
		<-r.Context().Done()
	}
}
