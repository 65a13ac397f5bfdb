package crm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type LeadRecord struct {
	ID     string
	Key    string
	Fields LeadFields
}

type TicketRecord struct {
	Number string
	Key    string
	Fields TicketFields
}

type TaskRecord struct {
	ID     string
	Key    string
	LeadID string
	DueAt  time.Time
	Text   string
}

type NoteRecord struct {
	EntityID string
	Text     string
}

// MemoryGateway records every artefact in memory. It honours idempotency
// keys and can be told to fail upcoming calls.
type MemoryGateway struct {
	mu        sync.Mutex
	seq       int
	Leads     []LeadRecord
	Tickets   []TicketRecord
	Tasks     []TaskRecord
	Notes     []NoteRecord
	Customers map[string]Customer

	byKey    map[string]string
	failures map[string][]error
}

// Operation names accepted by FailNext.
const (
	OpCreateLead   = "create_lead"
	OpCreateTicket = "create_ticket"
	OpCreateTask   = "create_task"
	OpAddNote      = "add_note"
	OpFindCustomer = "find_customer"
)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		Customers: map[string]Customer{},
		byKey:     map[string]string{},
		failures:  map[string][]error{},
	}
}

// FailNext makes the next call of op return err.
func (g *MemoryGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

func (g *MemoryGateway) popFailureLocked(op string) error {
	q := g.failures[op]
	if len(q) == 0 {
		return nil
	}
	g.failures[op] = q[1:]
	return q[0]
}

func (g *MemoryGateway) CreateLead(_ context.Context, key string, f LeadFields) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popFailureLocked(OpCreateLead); err != nil {
		return "", err
	}
	if id, ok := g.byKey["lead:"+key]; ok && key != "" {
		return id, nil
	}
	g.seq++
	id := fmt.Sprintf("L-%d", g.seq)
	g.byKey["lead:"+key] = id
	g.Leads = append(g.Leads, LeadRecord{ID: id, Key: key, Fields: f})
	return id, nil
}

func (g *MemoryGateway) CreateTicket(_ context.Context, key string, f TicketFields) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popFailureLocked(OpCreateTicket); err != nil {
		return "", err
	}
	if n, ok := g.byKey["ticket:"+key]; ok && key != "" {
		return n, nil
	}
	g.seq++
	n := fmt.Sprintf("T-%d", g.seq)
	g.byKey["ticket:"+key] = n
	g.Tickets = append(g.Tickets, TicketRecord{Number: n, Key: key, Fields: f})
	return n, nil
}

func (g *MemoryGateway) CreateTask(_ context.Context, key, leadID string, dueAt time.Time, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popFailureLocked(OpCreateTask); err != nil {
		return "", err
	}
	if id, ok := g.byKey["task:"+key]; ok && key != "" {
		return id, nil
	}
	g.seq++
	id := fmt.Sprintf("K-%d", g.seq)
	g.byKey["task:"+key] = id
	g.Tasks = append(g.Tasks, TaskRecord{ID: id, Key: key, LeadID: leadID, DueAt: dueAt, Text: text})
	return id, nil
}

func (g *MemoryGateway) AddNote(_ context.Context, entityID, text string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popFailureLocked(OpAddNote); err != nil {
		return false, err
	}
	for _, n := range g.Notes {
		if n.EntityID == entityID && n.Text == text {
			return true, nil
		}
	}
	g.Notes = append(g.Notes, NoteRecord{EntityID: entityID, Text: text})
	return true, nil
}

func (g *MemoryGateway) FindCustomerByPhone(_ context.Context, phone string) (Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popFailureLocked(OpFindCustomer); err != nil {
		return Customer{}, err
	}
	c, ok := g.Customers[phone]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

// Counts returns how many leads, tickets and tasks exist.
func (g *MemoryGateway) Counts() (leads, tickets, tasks int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Leads), len(g.Tickets), len(g.Tasks)
}

// Snapshot returns copies of the recorded artefacts.
func (g *MemoryGateway) Snapshot() ([]LeadRecord, []TicketRecord, []TaskRecord, []NoteRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]LeadRecord(nil), g.Leads...),
		append([]TicketRecord(nil), g.Tickets...),
		append([]TaskRecord(nil), g.Tasks...),
		append([]NoteRecord(nil), g.Notes...)
}
