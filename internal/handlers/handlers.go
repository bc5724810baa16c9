package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	luhn "github.com/EClaesson/go-luhn"
	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"doc-courier/internal/approval"
	"doc-courier/internal/auth"
	"doc-courier/internal/cache"
	"doc-courier/internal/ledger"
	"doc-courier/internal/middleware"
	"doc-courier/internal/model"
	"doc-courier/internal/orders"
	"doc-courier/internal/pricing"
)

type AccountStore interface {
	CreateAccount(ctx context.Context, a *model.Account) (*model.Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	SetAccountChatID(ctx context.Context, accountID, chatID int64) error
}

type Server struct {
	Accounts  AccountStore
	Engine    *orders.Engine
	Ledger    *ledger.Ledger
	Gate      *approval.Gate
	Links     *cache.Cache
	JWTSecret string
	Log       *slog.Logger
}

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("response encoding failed", "error", err)
	}
}

func (s *Server) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}
	if req.Login == "" || req.Password == "" {
		http.Error(w, "Login and password are required", http.StatusBadRequest)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Failed to hash the password", http.StatusInternalServerError)
		return
	}

	account, err := s.Accounts.CreateAccount(r.Context(), &model.Account{
		Login:        req.Login,
		PasswordHash: passwordHash,
		Name:         req.Name,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateLogin) {
			http.Error(w, "Login already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateToken(account.Login, account.Admin, s.JWTSecret)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"token":  token,
	})
}

func (s *Server) LoginAccount(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	account, err := s.Accounts.GetAccountByLogin(r.Context(), req.Login)
	if err != nil {
		http.Error(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.Password); err != nil {
		http.Error(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(account.Login, account.Admin, s.JWTSecret)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"token":  token,
	})
}

func (s *Server) accountFromRequest(r *http.Request) (*model.Account, error) {
	claims, err := middleware.ClaimsFromRequest(r)
	if err != nil {
		return nil, err
	}
	return s.Accounts.GetAccountByLogin(r.Context(), claims.Login)
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req orders.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	order, err := s.Engine.Create(r.Context(), account.ID, req)
	if err != nil {
		s.writeOrderError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

func (s *Server) writeOrderError(w http.ResponseWriter, err error) {
	var insErr *model.InsufficientBalanceError
	switch {
	case errors.Is(err, orders.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pricing.ErrBelowMinimumQuantity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &insErr):
		http.Error(w, insErr.Error(), http.StatusPaymentRequired)
	case errors.Is(err, orders.ErrTooManyActiveOrders):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrAccountNotFound), errors.Is(err, model.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.Log.Error("order operation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := s.Engine.List(r.Context(), model.OrderFilter{AccountID: &account.ID})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"balance": account.Balance.StringFixed(2),
	})
}

type topUpRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	CardNumber  string          `json:"card_number,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (s *Server) TopUpBalance(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	if req.CardNumber != "" {
		valid, err := luhn.IsValid(req.CardNumber)
		if err != nil || !valid {
			http.Error(w, "Invalid card number", http.StatusUnprocessableEntity)
			return
		}
	}

	updated, err := s.Ledger.TopUp(r.Context(), account.ID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, ledger.ErrNonPositiveAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) GetMyTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	txs, err := s.Ledger.ListTransactions(r.Context(), &account.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

type linkRequest struct {
	Code string `json:"code"`
}

// LinkChat consumes a one-shot code handed out by the bot and binds the
// bot's chat to the authenticated account, so lifecycle notifications reach
// the customer's messenger.
func (s *Server) LinkChat(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	account, err := s.Accounts.GetAccountByLogin(r.Context(), claims.Login)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	v, ok := s.Links.Get("link:" + account.Login)
	if !ok {
		http.Error(w, "No pending link code, request one from the bot", http.StatusNotFound)
		return
	}
	link, ok := v.(model.ChatLink)
	if !ok {
		http.Error(w, "No pending link code, request one from the bot", http.StatusNotFound)
		return
	}
	if link.Code != req.Code {
		http.Error(w, "Wrong code", http.StatusUnprocessableEntity)
		return
	}

	if err := s.Accounts.SetAccountChatID(r.Context(), account.ID, link.ChatID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.Links.Delete("link:" + account.Login)
	w.WriteHeader(http.StatusOK)
}

// Admin surface.

func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter model.OrderFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := model.Status(raw)
		if !st.Valid() {
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
		filter.Status = &st
	}

	list, err := s.Engine.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var accountID *int64
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid account id", http.StatusBadRequest)
			return
		}
		accountID = &id
	}

	txs, err := s.Ledger.ListTransactions(r.Context(), accountID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

type statusUpdateRequest struct {
	Status model.Status `json:"status"`
	Notes  string       `json:"notes,omitempty"`
	Notify *bool        `json:"notify,omitempty"`
}

func (s *Server) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}
	notify := true
	if req.Notify != nil {
		notify = *req.Notify
	}

	order, err := s.Engine.UpdateStatus(r.Context(), orderID, req.Status, req.Notes, notify)
	if err != nil {
		s.writeOrderError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}
	order, err := s.Engine.Get(r.Context(), orderID)
	if err != nil {
		s.writeOrderError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

type refundRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RefundOrder credits the order's payment back to the owner as a refund
// transaction. The order status is untouched: refunds are an operator
// decision, not a lifecycle transition.
func (s *Server) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req refundRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request format", http.StatusBadRequest)
			return
		}
	}

	order, err := s.Engine.Get(r.Context(), orderID)
	if err != nil {
		s.writeOrderError(w, err)
		return
	}

	desc := "refund for order " + order.Number
	if req.Reason != "" {
		desc += ": " + req.Reason
	}
	tx, err := s.Ledger.Refund(r.Context(), order.AccountID, order.TotalCost, order.ID, desc)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) approvalKind(w http.ResponseWriter, r *http.Request) (approval.Kind, int64, bool) {
	kind := approval.Kind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid entity id", http.StatusBadRequest)
		return "", 0, false
	}
	return kind, id, true
}

func (s *Server) ApproveEntity(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	approver, err := s.Accounts.GetAccountByLogin(r.Context(), claims.Login)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind, id, ok := s.approvalKind(w, r)
	if !ok {
		return
	}
	if err := s.Gate.Approve(r.Context(), kind, id, approver.ID); err != nil {
		s.writeApprovalError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) RejectEntity(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	approver, err := s.Accounts.GetAccountByLogin(r.Context(), claims.Login)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind, id, ok := s.approvalKind(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	if err := s.Gate.Reject(r.Context(), kind, id, approver.ID, req.Reason); err != nil {
		s.writeApprovalError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrReasonRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, approval.ErrUnknownKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrOrderNotFound), errors.Is(err, model.ErrTransactionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.Log.Error("approval operation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
