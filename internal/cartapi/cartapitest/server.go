// Package cartapitest provides an in-memory cart service for tests.
package cartapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/model"
)

// Failure is a canned error response for the next matching request.
type Failure struct {
	Status int
	Body   string
	Header http.Header
}

// Server is a fake guest cart service backed by maps.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	products map[string]model.Product
	carts    map[string]*model.Cart
	failures map[string][]Failure // "METHOD /path" → queued failures
	requests []*http.Request
	nextID   int
	// Hold, when set, is waited on before answering mutating requests.
	hold chan struct{}
}

// NewServer starts a fake cart service with the given catalogue.
func NewServer(products ...model.Product) *Server {
	s := &Server{
		products: make(map[string]model.Product),
		carts:    make(map[string]*model.Cart),
		failures: make(map[string][]Failure),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart/guest", s.handleGetCart)
	mux.HandleFunc("POST /cart/guest/items", s.handleAddItem)
	mux.HandleFunc("PUT /cart/guest/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/guest/items/{id}", s.handleRemoveItem)
	mux.HandleFunc("POST /cart/guest/convert-to-user", s.handleConvert)

	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// FailNext queues a failure for the next request matching method and path.
// path may use the literal item id, e.g. "/cart/guest/items/i1".
func (s *Server) FailNext(method, path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], f)
}

// Hold blocks mutating requests until the returned release func is called.
func (s *Server) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Cart returns a copy of the server-side cart for a session.
func (s *Server) Cart(sessionID string) *model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[sessionID].Clone()
}

// Requests returns every request received so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(r.Context()))
		key := r.Method + " " + r.URL.Path
		var fail *Failure
		if queue := s.failures[key]; len(queue) > 0 {
			fail = &queue[0]
			s.failures[key] = queue[1:]
		}
		hold := s.hold
		s.mu.Unlock()

		if hold != nil && r.Method != http.MethodGet {
			<-hold
		}

		if fail != nil {
			for k, vs := range fail.Header {
				w.Header()[k] = vs
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fail.Status)
			w.Write([]byte(fail.Body))
			return
		}

		if r.Header.Get(apiclient.SessionHeader) == "" {
			writeError(w, http.StatusBadRequest, apiclient.CodeInvalidSession, "X-Session-Id header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cartFor(sessionID string) *model.Cart {
	cart, ok := s.carts[sessionID]
	if !ok {
		s.nextID++
		cart = &model.Cart{
			ID:        fmt.Sprintf("cart-%d", s.nextID),
			SessionID: sessionID,
			Items:     []model.CartItem{},
			CreatedAt: time.Now().UTC(),
		}
		s.carts[sessionID] = cart
	}
	return cart
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartFor(r.Header.Get(apiclient.SessionHeader)).Clone()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, model.CartEnvelope{Cart: cart})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "quantity must be positive")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[body.ProductID]
	if !ok {
		writeError(w, http.StatusNotFound, apiclient.CodeProductNotFound, "Product not found")
		return
	}

	cart := s.cartFor(r.Header.Get(apiclient.SessionHeader))
	for i := range cart.Items {
		if cart.Items[i].ProductID == body.ProductID {
			cart.Items[i].Quantity += body.Quantity
			cart.UpdatedAt = time.Now().UTC()
			item := cart.Items[i]
			writeJSON(w, http.StatusOK, model.ItemEnvelope{Item: &item})
			return
		}
	}

	s.nextID++
	item := model.CartItem{
		ID:        fmt.Sprintf("item-%d", s.nextID),
		ProductID: product.ID,
		Product:   product,
		Quantity:  body.Quantity,
	}
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusCreated, model.ItemEnvelope{Item: &item})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartFor(r.Header.Get(apiclient.SessionHeader))
	itemID := r.PathValue("id")
	if _, ok := cart.Item(itemID); !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Cart item not found")
		return
	}
	updated := cart.WithQuantity(itemID, body.Quantity)
	*cart = *updated
	writeJSON(w, http.StatusOK, model.CartEnvelope{Cart: cart.Clone()})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartFor(r.Header.Get(apiclient.SessionHeader))
	itemID := r.PathValue("id")
	if _, ok := cart.Item(itemID); !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Cart item not found")
		return
	}
	*cart = *cart.WithoutItem(itemID)
	writeJSON(w, http.StatusOK, model.CartEnvelope{Cart: cart.Clone()})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var profile model.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil || profile.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := r.Header.Get(apiclient.SessionHeader)
	cart := s.cartFor(sessionID)
	if len(cart.Items) == 0 {
		writeError(w, http.StatusBadRequest, apiclient.CodeEmptyCart, "Cart is empty")
		return
	}

	userCart := cart.Clone()
	userCart.SessionID = ""
	userCart.UserID = "user-" + strings.ToLower(profile.Email)
	delete(s.carts, sessionID)
	writeJSON(w, http.StatusOK, model.CartEnvelope{Cart: userCart})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
