// Package httpapi is the station-facing HTTP surface: auth, order CRUD, the
// lock RPC served by the main station, payments, and the close-batch flow.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"floorpos/backend/internal/cache"
	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/locktable"
	"floorpos/backend/internal/payment"
	"floorpos/backend/internal/service"
	"floorpos/backend/internal/store"
)

type API struct {
	service       *service.Service
	locks         locktable.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter

	snapshots cache.SnapshotCache
	storeID   string

	batchMu sync.Mutex
	batch   *service.CloseBatch
}

func New(svc *service.Service, locks locktable.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		locks:         locks,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
}

// UseSnapshotCache serves the active-shift lookup from the shared snapshot
// cache when it holds a value, falling back to the repository on a miss.
func (a *API) UseSnapshotCache(snapshots cache.SnapshotCache, storeID string) {
	a.snapshots = snapshots
	a.storeID = storeID
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, "manager"))

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, "server", "manager"))
	mux.HandleFunc("/api/v1/orders/lock", a.requireAuth(a.handleLock, "server", "manager"))
	mux.HandleFunc("/api/v1/orders/unlock-all", a.requireAuth(a.handleUnlockAll, "server", "manager"))
	mux.HandleFunc("/api/v1/orders/locked", a.requireAuth(a.handleLocked, "server", "manager"))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, "server", "manager"))

	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayBill, "server", "manager"))
	mux.HandleFunc("/api/v1/transactions/", a.requireAuth(a.handleTransactionActions, "server", "manager"))

	mux.HandleFunc("/api/v1/shifts/open", a.requireAuth(a.handleShiftOpen, "server", "manager"))
	mux.HandleFunc("/api/v1/shifts/close", a.requireAuth(a.handleShiftClose, "manager"))
	mux.HandleFunc("/api/v1/shifts/active", a.requireAuth(a.handleShiftActive, "server", "manager"))

	mux.HandleFunc("/api/v1/batch/close", a.requireAuth(a.handleCloseBatch, "manager"))
	mux.HandleFunc("/api/v1/batch/close/run", a.requireAuth(a.handleCloseBatchRun, "manager"))
	mux.HandleFunc("/api/v1/batch/close/force-settle", a.requireAuth(a.handleForceSettle, "manager"))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "manager"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// requireManagerPIN gates the destructive money paths behind a second factor
// beyond the bearer token.
func (a *API) requireManagerPIN(w http.ResponseWriter, r *http.Request, action string) bool {
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(r.Header.Get("X-Manager-PIN")) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListServerAccounts()})
	case http.MethodPost:
		var req UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateServerAccount(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders, err := a.service.ListOpenOrders(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req service.CreateOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.CreateOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"order": order})
	default:
		writeMethodNotAllowed(w)
	}
}

type lockRequest struct {
	StationID string   `json:"station_id"`
	OrderIDs  []string `json:"order_ids"`
}

// handleLock is the lock RPC endpoint sub stations call on the main station.
// All-or-nothing: a partial grant never happens, and a held order answers 409.
func (a *API) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req lockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	orders, err := a.locks.Lock(r.Context(), req.StationID, req.OrderIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type unlockRequest struct {
	StationID string `json:"station_id"`
}

func (a *API) handleUnlockAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req unlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.StationID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("station_id required"))
		return
	}

	if err := a.locks.UnlockAll(r.Context(), req.StationID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleLocked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	locked, err := a.locks.Locked(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locked_orders": locked})
}

type addItemsRequest struct {
	BillID string             `json:"bill_id,omitempty"`
	Items  []domain.OrderItem `json:"items"`
}

type discountRequest struct {
	BillID        string `json:"bill_id,omitempty"`
	DiscountCents int64  `json:"discount_cents"`
}

type splitRequest struct {
	BillID string               `json:"bill_id"`
	Split  service.SplitRequest `json:"split"`
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/orders/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id required"))
		return
	}

	orderID, action, _ := strings.Cut(tail, "/")
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			order, err := a.service.GetOrder(r.Context(), orderID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"order": order})
		case http.MethodDelete:
			if err := a.service.DeleteEmptyOrder(r.Context(), orderID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeMethodNotAllowed(w)
		}

	case "items":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req addItemsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.AddItems(r.Context(), orderID, req.BillID, req.Items)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})

	case "split":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req splitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.SplitBill(r.Context(), orderID, req.BillID, req.Split)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})

	case "discount":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req discountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.SetDiscount(r.Context(), orderID, req.BillID, req.DiscountCents)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})

	default:
		// items/{itemID} delete
		if billAction, itemID, ok := strings.Cut(action, "/"); ok && billAction == "items" && r.Method == http.MethodDelete {
			billID := r.URL.Query().Get("bill_id")
			order, err := a.service.RemoveItem(r.Context(), orderID, billID, itemID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"order": order})
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("unknown order action"))
	}
}

func (a *API) handlePayBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req service.PayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.PayBill(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type adjustTipRequest struct {
	TipCents int64 `json:"tip_cents"`
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/transactions/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	transactionID, action, _ := strings.Cut(tail, "/")
	if transactionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction id required"))
		return
	}

	switch action {
	case "void":
		if !a.requireManagerPIN(w, r, "void") {
			return
		}
		var req voidRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tx, err := a.service.VoidTransaction(r.Context(), transactionID, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})

	case "adjust-tip":
		var req adjustTipRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tx, err := a.service.AdjustTip(r.Context(), transactionID, req.TipCents)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})

	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown transaction action"))
	}
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	shift, err := a.service.OpenShift(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	shift, err := a.service.CloseShift(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if a.snapshots != nil {
		if shift, hit, err := a.snapshots.GetActiveShift(r.Context(), a.storeID); err == nil && hit {
			writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
			return
		} else if err != nil {
			log.Printf("snapshot cache read failed, falling back to repository: %v", err)
		}
	}

	shift, err := a.service.ActiveShift(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

// handleCloseBatch manages the settlement session: POST starts one, GET
// reports job states, DELETE dismisses a completed session.
func (a *API) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.batchMu.Lock()
		defer a.batchMu.Unlock()
		if a.batch != nil && !a.batch.Done() {
			writeError(w, http.StatusConflict, errors.New("a close batch is already in progress"))
			return
		}
		batch, err := a.service.NewCloseBatch(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		a.batch = batch
		writeJSON(w, http.StatusCreated, map[string]any{"jobs": batch.Jobs(), "done": batch.Done()})

	case http.MethodGet:
		batch := a.currentBatch()
		if batch == nil {
			writeError(w, http.StatusNotFound, errors.New("no close batch in progress"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": batch.Jobs(), "done": batch.Done()})

	case http.MethodDelete:
		a.batchMu.Lock()
		defer a.batchMu.Unlock()
		if a.batch == nil {
			writeError(w, http.StatusNotFound, errors.New("no close batch in progress"))
			return
		}
		// Dismissal waits for every job to come to rest, not for success.
		if a.batch.Active() {
			writeServiceError(w, service.ErrBatchRunning)
			return
		}
		a.batch = nil
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeMethodNotAllowed(w)
	}
}

type closeBatchRunRequest struct {
	DeviceID string `json:"device_id"`
}

func (a *API) handleCloseBatchRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	batch := a.currentBatch()
	if batch == nil {
		writeError(w, http.StatusNotFound, errors.New("no close batch in progress"))
		return
	}

	var req closeBatchRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := batch.Run(r.Context(), req.DeviceID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": batch.Jobs(), "done": batch.Done()})
}

func (a *API) handleForceSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireManagerPIN(w, r, "force-settle") {
		return
	}

	batch := a.currentBatch()
	if batch == nil {
		writeError(w, http.StatusNotFound, errors.New("no close batch in progress"))
		return
	}

	if err := batch.ForceSettle(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": batch.Jobs(), "done": batch.Done()})
}

func (a *API) currentBatch() *service.CloseBatch {
	a.batchMu.Lock()
	defer a.batchMu.Unlock()
	return a.batch
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps service and store sentinels onto HTTP statuses. The
// lock RPC contract leans on 409 for contention.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, locktable.ErrAlreadyLocked),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, service.ErrJobActive),
		errors.Is(err, service.ErrBatchRunning),
		errors.Is(err, service.ErrShiftAlreadyOpen):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, domain.ErrBadSplit),
		errors.Is(err, domain.ErrBillNotPayable),
		errors.Is(err, payment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrManagerRequired):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, service.ErrCancelled):
		// A cancelled mutation saved nothing; the client keeps its view.
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages stay generic so internal details never reach clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
