// Package testutil provides a fake order/payment backend with a push channel
// for tests that exercise the kiosk end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Reply is a canned HTTP answer. A zero Status means "use the default".
type Reply struct {
	Status int
	Body   any
}

// Call is one request the backend received.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	seq      int
	calls    []Call
	sockets  map[string][]*websocket.Conn
	connects map[string]int
	refuse   map[string]bool
	gate     chan struct{}
	release  func()

	// Optional overrides, consulted on every matching request.
	OnCreateOrder    func(body map[string]any) Reply
	OnCancelOrder    func(orderID string) Reply
	OnQRPayment      func(orderID string) Reply
	OnStudentPayment func(orderID, studentID string) Reply

	// TTL is the expiry handed out with new payment requests.
	TTL time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		sockets:  make(map[string][]*websocket.Conn),
		connects: make(map[string]int),
		refuse:   make(map[string]bool),
		TTL:      3 * time.Minute,
	}

	r := chi.NewRouter()
	r.Post("/orders", b.createOrder)
	r.Post("/orders/{id}/cancel", b.cancelOrder)
	r.Post("/payments/qr", b.qrPayment)
	r.Post("/payments/student-id", b.studentPayment)
	r.Get("/ws/payment-requests/{requestId}", b.socket)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

func (b *Backend) URL() string {
	return b.Server.URL
}

func (b *Backend) Close() {
	b.mu.Lock()
	release := b.release
	b.mu.Unlock()
	if release != nil {
		release()
	}

	b.mu.Lock()
	for id, conns := range b.sockets {
		for _, c := range conns {
			c.Close()
		}
		delete(b.sockets, id)
	}
	b.mu.Unlock()
	b.Server.Close()
}

// ----------------- HTTP -----------------

func (b *Backend) record(r *http.Request) map[string]any {
	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	b.mu.Lock()
	b.calls = append(b.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body})
	b.mu.Unlock()
	return body
}

func (b *Backend) next(prefix string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func (b *Backend) createOrder(w http.ResponseWriter, r *http.Request) {
	body := b.record(r)
	if b.OnCreateOrder != nil {
		writeReply(w, b.OnCreateOrder(body), http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": b.next("ord")})
}

func (b *Backend) cancelOrder(w http.ResponseWriter, r *http.Request) {
	b.record(r)
	if b.OnCancelOrder != nil {
		writeReply(w, b.OnCancelOrder(chi.URLParam(r, "id")), http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) qrPayment(w http.ResponseWriter, r *http.Request) {
	body := b.record(r)
	b.wait()
	orderID, _ := body["orderId"].(string)
	if b.OnQRPayment != nil {
		writeReply(w, b.OnQRPayment(orderID), http.StatusCreated)
		return
	}
	id := b.next("req")
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        id,
		"token":     "qr:" + id,
		"expiresAt": time.Now().Add(b.TTL).UTC().Format(time.RFC3339Nano),
	})
}

func (b *Backend) studentPayment(w http.ResponseWriter, r *http.Request) {
	body := b.record(r)
	b.wait()
	orderID, _ := body["orderId"].(string)
	studentID, _ := body["studentId"].(string)
	if b.OnStudentPayment != nil {
		writeReply(w, b.OnStudentPayment(orderID, studentID), http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        b.next("req"),
		"expiresAt": time.Now().Add(b.TTL).UTC().Format(time.RFC3339Nano),
	})
}

func (b *Backend) wait() {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

// Hold blocks payment creation until the returned release func is called.
func (b *Backend) Hold() func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			b.gate = nil
			b.mu.Unlock()
			close(gate)
		})
	}

	b.mu.Lock()
	b.release = release
	b.mu.Unlock()
	return release
}

// Calls returns every request received on path.
func (b *Backend) Calls(path string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Call
	for _, c := range b.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func writeReply(w http.ResponseWriter, r Reply, def int) {
	status := r.Status
	if status == 0 {
		status = def
	}
	if r.Body == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorReply builds the backend's error envelope.
func ErrorReply(status int, code string) Reply {
	return Reply{Status: status, Body: map[string]string{"code": code}}
}

// ----------------- Push channel -----------------

// Refuse makes the push endpoint reject upgrades for requestID.
func (b *Backend) Refuse(requestID string, refuse bool) {
	b.mu.Lock()
	b.refuse[requestID] = refuse
	b.mu.Unlock()
}

func (b *Backend) socket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")

	b.mu.Lock()
	b.connects[id]++
	refused := b.refuse[id]
	b.mu.Unlock()

	if refused {
		http.Error(w, "gone", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.sockets[id] = append(b.sockets[id], conn)
	b.mu.Unlock()

	// Drain until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	conns := b.sockets[id]
	for i, c := range conns {
		if c == conn {
			b.sockets[id] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	conn.Close()
}

// Connects returns how many times a socket for requestID was requested.
func (b *Backend) Connects(requestID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects[requestID]
}

// OpenSockets returns the number of live sockets for requestID.
func (b *Backend) OpenSockets(requestID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets[requestID])
}

// Push sends v as a JSON frame to every socket open for requestID.
func (b *Backend) Push(requestID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.PushRaw(requestID, string(raw))
}

// PushRaw sends data verbatim as a text frame.
func (b *Backend) PushRaw(requestID, data string) error {
	b.mu.Lock()
	conns := append([]*websocket.Conn(nil), b.sockets[requestID]...)
	b.mu.Unlock()

	if len(conns) == 0 {
		return fmt.Errorf("no socket open for %s", requestID)
	}
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
			return err
		}
	}
	return nil
}

// Drop closes every socket for requestID without a close handshake.
func (b *Backend) Drop(requestID string) {
	b.mu.Lock()
	conns := b.sockets[requestID]
	delete(b.sockets, requestID)
	b.mu.Unlock()

	for _, c := range conns {
		c.UnderlyingConn().Close()
	}
}
