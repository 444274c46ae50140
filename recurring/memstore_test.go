package recurring_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fakturierung-recurring/models"
	"fakturierung-recurring/recurring"
)

type memState struct {
	clients  map[string]models.Client
	defs     map[string]models.RecurringDefinition
	invoices []models.Invoice
}

func (s *memState) clone() *memState {
	out := &memState{
		clients:  make(map[string]models.Client, len(s.clients)),
		defs:     make(map[string]models.RecurringDefinition, len(s.defs)),
		invoices: append([]models.Invoice(nil), s.invoices...),
	}
	for k, v := range s.clients {
		out.clients[k] = v
	}
	for k, v := range s.defs {
		out.defs[k] = cloneDef(v)
	}
	return out
}

// memStore is an in-memory recurring.Store. Transactions hold the lock for
// their whole duration and restore a snapshot on error or panic.
type memStore struct {
	mu    *sync.Mutex
	state *memState
	bound bool
	seq   *atomic.Int64

	// failure injection, set before use
	createInvoiceFn  func(inv *models.Invoice) error
	updateScheduleFn func(id string) error
	findDueErr       error
}

func newMemStore() *memStore {
	return &memStore{
		mu:    &sync.Mutex{},
		state: &memState{clients: map[string]models.Client{}, defs: map[string]models.RecurringDefinition{}},
		seq:   &atomic.Int64{},
	}
}

func (m *memStore) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, m.seq.Add(1))
}

func (m *memStore) do(fn func(st *memState) error) error {
	if m.bound {
		return fn(m.state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx recurring.Store) error) (err error) {
	if m.bound {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.state.clone()
	tx := *m
	tx.bound = true
	defer func() {
		if r := recover(); r != nil {
			*m.state = *snap
			panic(r)
		}
		if err != nil {
			*m.state = *snap
		}
	}()
	return fn(&tx)
}

func (m *memStore) FindClientForAccount(ctx context.Context, clientID, accountID string) (*models.Client, error) {
	var out *models.Client
	err := m.do(func(st *memState) error {
		c, ok := st.clients[clientID]
		if !ok || c.AccountId != accountID {
			return recurring.ErrClientNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (m *memStore) CreateRecurringDefinition(ctx context.Context, def *models.RecurringDefinition) error {
	return m.do(func(st *memState) error {
		if def.Id == "" {
			def.Id = m.nextID("def")
		}
		st.defs[def.Id] = cloneDef(*def)
		return nil
	})
}

func (m *memStore) SaveRecurringDefinition(ctx context.Context, def *models.RecurringDefinition, expectedNextRunAt time.Time, replaceItems bool) error {
	return m.do(func(st *memState) error {
		stored, ok := st.defs[def.Id]
		if !ok || stored.AccountId != def.AccountId {
			return recurring.ErrNotFound
		}
		if !stored.NextRunAt.Equal(expectedNextRunAt) {
			return recurring.ErrScheduleConflict
		}
		next := cloneDef(*def)
		next.LastRunAt = cloneDef(stored).LastRunAt
		if !replaceItems {
			next.Items, next.Groups = stored.Items, stored.Groups
		}
		st.defs[def.Id] = next
		return nil
	})
}

func (m *memStore) FindRecurringDefinition(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	var out *models.RecurringDefinition
	err := m.do(func(st *memState) error {
		def, ok := st.defs[id]
		if !ok || def.AccountId != accountID {
			return recurring.ErrNotFound
		}
		c := cloneDef(def)
		out = &c
		return nil
	})
	return out, err
}

func (m *memStore) ListRecurringDefinitions(ctx context.Context, accountID string, filter recurring.ListFilter) ([]models.RecurringDefinition, int64, error) {
	var out []models.RecurringDefinition
	var total int64
	err := m.do(func(st *memState) error {
		var all []models.RecurringDefinition
		for _, def := range st.defs {
			if def.AccountId != accountID {
				continue
			}
			if filter.Status != nil && def.Status != *filter.Status {
				continue
			}
			all = append(all, cloneDef(def))
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })
		total = int64(len(all))
		start := filter.Offset()
		if start > len(all) {
			start = len(all)
		}
		end := start + filter.Limit
		if end > len(all) {
			end = len(all)
		}
		out = all[start:end]
		return nil
	})
	return out, total, err
}

func (m *memStore) DeleteRecurringDefinition(ctx context.Context, accountID, id string) error {
	return m.do(func(st *memState) error {
		def, ok := st.defs[id]
		if !ok || def.AccountId != accountID {
			return recurring.ErrNotFound
		}
		delete(st.defs, id)
		return nil
	})
}

func (m *memStore) FindDueRecurringDefinitions(ctx context.Context, now time.Time) ([]models.RecurringDefinition, error) {
	if m.findDueErr != nil {
		return nil, m.findDueErr
	}
	var out []models.RecurringDefinition
	err := m.do(func(st *memState) error {
		for _, def := range st.defs {
			if recurring.IsDue(&def, now) {
				out = append(out, cloneDef(def))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
				return out[i].NextRunAt.Before(out[j].NextRunAt)
			}
			return out[i].Id < out[j].Id
		})
		return nil
	})
	return out, err
}

func (m *memStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if m.createInvoiceFn != nil {
		if err := m.createInvoiceFn(inv); err != nil {
			return err
		}
	}
	return m.do(func(st *memState) error {
		for _, existing := range st.invoices {
			if existing.InvoiceNumber == inv.InvoiceNumber {
				return fmt.Errorf("duplicate invoice number %s", inv.InvoiceNumber)
			}
		}
		if inv.Id == "" {
			inv.Id = m.nextID("inv")
		}
		st.invoices = append(st.invoices, *inv)
		return nil
	})
}

func (m *memStore) UpdateRecurringSchedule(ctx context.Context, id string, update recurring.ScheduleUpdate) error {
	if m.updateScheduleFn != nil {
		if err := m.updateScheduleFn(id); err != nil {
			return err
		}
	}
	return m.do(func(st *memState) error {
		def, ok := st.defs[id]
		if !ok {
			return recurring.ErrNotFound
		}
		if !def.NextRunAt.Equal(update.ExpectedNextRunAt) || def.Status == models.RecurringCanceled {
			return recurring.ErrScheduleConflict
		}
		last := update.LastRunAt
		def.LastRunAt = &last
		def.NextRunAt = update.NextRunAt
		st.defs[id] = def
		return nil
	})
}

// helpers for assertions

func (m *memStore) def(id string) models.RecurringDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDef(m.state.defs[id])
}

func (m *memStore) invoices() []models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Invoice(nil), m.state.invoices...)
}

func (m *memStore) addClient(id, accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.clients[id] = models.Client{Id: id, AccountId: accountID, CompanyName: "Client " + id}
}

func (m *memStore) put(def models.RecurringDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.defs[def.Id] = cloneDef(def)
}

func cloneDef(def models.RecurringDefinition) models.RecurringDefinition {
	out := def
	if def.EndDate != nil {
		v := *def.EndDate
		out.EndDate = &v
	}
	if def.LastRunAt != nil {
		v := *def.LastRunAt
		out.LastRunAt = &v
	}
	out.Items = append([]models.RecurringItem(nil), def.Items...)
	out.Groups = make([]models.RecurringItemGroup, len(def.Groups))
	for i, g := range def.Groups {
		g.Items = append([]models.RecurringItem(nil), g.Items...)
		out.Groups[i] = g
	}
	return out
}

// seqNumbers is a deterministic invoice number source.
type seqNumbers struct {
	n atomic.Int64
}

func (s *seqNumbers) Next() string {
	return fmt.Sprintf("INV-%04d", s.n.Add(1))
}
