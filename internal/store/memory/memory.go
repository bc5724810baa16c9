// Package memory is an in-process store with the same contract as the
// Postgres store. It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"doc-courier/internal/model"
)

type Store struct {
	mu           sync.Mutex
	accounts     map[int64]*model.Account
	orders       map[int64]*model.Order
	transactions []model.Transaction
	nextAccount  int64
	nextOrder    int64
	nextAddress  int64
	nextTx       int64
}

func New() *Store {
	return &Store{
		accounts: make(map[int64]*model.Account),
		orders:   make(map[int64]*model.Order),
	}
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	return &c
}

func (s *Store) cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Addresses = append([]model.DeliveryAddress(nil), o.Addresses...)
	if a, ok := s.accounts[o.AccountID]; ok {
		c.Account = cloneAccount(a)
	}
	return &c
}

func (s *Store) CreateAccount(_ context.Context, a *model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Login == a.Login {
			return nil, model.ErrDuplicateLogin
		}
	}
	s.nextAccount++
	a.ID = s.nextAccount
	a.Active = true
	a.CreatedAt = time.Now().UTC()
	s.accounts[a.ID] = cloneAccount(a)
	return a, nil
}

func (s *Store) GetAccountByID(_ context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (s *Store) GetAccountByLogin(_ context.Context, login string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Login == login {
			return cloneAccount(a), nil
		}
	}
	return nil, model.ErrAccountNotFound
}

func (s *Store) GetAccountByChatID(_ context.Context, chatID int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ChatID == chatID && chatID != 0 {
			return cloneAccount(a), nil
		}
	}
	return nil, model.ErrAccountNotFound
}

func (s *Store) SetAccountChatID(_ context.Context, accountID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return model.ErrAccountNotFound
	}
	a.ChatID = chatID
	return nil
}

func (s *Store) CreateOrderPaid(_ context.Context, o *model.Order, pay *model.Transaction, activeCap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[o.AccountID]
	if !ok {
		return model.ErrAccountNotFound
	}
	if active := s.countActiveLocked(o.AccountID); active >= activeCap {
		return fmt.Errorf("%w: %d already pending or in progress (limit %d)",
			model.ErrTooManyActiveOrders, active, activeCap)
	}
	if a.Balance.LessThan(o.TotalCost) {
		return &model.InsufficientBalanceError{Required: o.TotalCost, Available: a.Balance}
	}

	now := time.Now().UTC()
	s.nextOrder++
	o.ID = s.nextOrder
	o.CreatedAt = now
	o.UpdatedAt = now
	for i := range o.Addresses {
		s.nextAddress++
		o.Addresses[i].ID = s.nextAddress
		o.Addresses[i].OrderID = o.ID
	}
	s.orders[o.ID] = s.cloneOrder(o)

	s.nextTx++
	pay.ID = s.nextTx
	pay.OrderID = o.ID
	pay.CreatedAt = now
	s.transactions = append(s.transactions, *pay)

	a.Balance = a.Balance.Add(pay.Amount)
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id int64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return s.cloneOrder(o), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id int64, status model.Status, notes string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	o.Status = status
	if notes != "" {
		o.Notes = notes
	}
	o.UpdatedAt = time.Now().UTC()
	return s.cloneOrder(o), nil
}

func (s *Store) countActiveLocked(accountID int64) int {
	n := 0
	for _, o := range s.orders {
		if o.AccountID == accountID &&
			(o.Status == model.StatusPending || o.Status == model.StatusInProgress) {
			n++
		}
	}
	return n
}

func (s *Store) ListOrders(_ context.Context, f model.OrderFilter) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.AccountID != nil && o.AccountID != *f.AccountID {
			continue
		}
		out = append(out, *s.cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetOrderApproval(_ context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	now := time.Now().UTC()
	o.Approval = st
	o.ApprovedBy = approverID
	o.ApprovedAt = &now
	o.RejectionReason = reason
	o.UpdatedAt = now
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[t.AccountID]
	if !ok {
		return model.ErrAccountNotFound
	}
	s.nextTx++
	t.ID = s.nextTx
	t.CreatedAt = time.Now().UTC()
	s.transactions = append(s.transactions, *t)
	a.Balance = a.Balance.Add(t.Amount)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, accountID *int64) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Transaction
	for _, t := range s.transactions {
		if accountID != nil && t.AccountID != *accountID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) SetTransactionApproval(_ context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			now := time.Now().UTC()
			s.transactions[i].Approval = st
			s.transactions[i].ApprovedBy = approverID
			s.transactions[i].ApprovedAt = &now
			s.transactions[i].RejectionReason = reason
			return nil
		}
	}
	return model.ErrTransactionNotFound
}
