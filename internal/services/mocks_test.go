package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atria-app/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks shared by the arbitration, settlement, and lifecycle tests.
// They let us exercise the real service logic without a database.
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// --- TxBeginner mock ---

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- job repository mock ---

type mockJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newMockJobs(jobs ...*models.Job) *mockJobs {
	m := &mockJobs{jobs: make(map[uuid.UUID]*models.Job)}
	for _, j := range jobs {
		cp := *j
		m.jobs[j.ID] = &cp
	}
	return m
}

func (m *mockJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobs) ClaimTx(_ context.Context, _ pgx.Tx, jobID, providerID uuid.UUID, method string, snapshot models.ProviderSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusPaid || j.ProviderID != nil {
		return false, nil
	}
	now := time.Now()
	snap := snapshot
	j.Status = models.JobStatusAssigned
	j.ProviderID = &providerID
	j.AssignMethod = &method
	j.AssignedAt = &now
	j.ProviderSnapshot = &snap
	return true, nil
}

func (m *mockJobs) Transition(_ context.Context, jobID uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	return true, nil
}

func (m *mockJobs) SetCommissionTx(_ context.Context, _ pgx.Tx, jobID uuid.UUID, rate float64, commissionCents, platformCents int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.CommissionCents != nil {
		return false, nil
	}
	j.CommissionRate = &rate
	j.CommissionCents = &commissionCents
	j.PlatformCents = &platformCents
	return true, nil
}

func (m *mockJobs) StampClawbackTx(_ context.Context, _ pgx.Tx, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.CommissionCents == nil || j.ClawedBackAt != nil {
		return false, nil
	}
	now := time.Now()
	j.ClawedBackAt = &now
	return true, nil
}

func (m *mockJobs) ListActiveByProviderBetween(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.ProviderID == nil || *j.ProviderID != providerID {
			continue
		}
		switch j.Status {
		case models.JobStatusAssigned, models.JobStatusArrived, models.JobStatusInProgress:
		default:
			continue
		}
		if j.ScheduledAt.Before(from) || !j.ScheduledAt.Before(to) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockJobs) get(id uuid.UUID) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

// --- provider repository mock ---

type mockProviders struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*models.Provider
	familiar  map[uuid.UUID]bool
}

func newMockProviders(providers ...*models.Provider) *mockProviders {
	m := &mockProviders{
		providers: make(map[uuid.UUID]*models.Provider),
		familiar:  make(map[uuid.UUID]bool),
	}
	for _, p := range providers {
		cp := *p
		m.providers[p.ID] = &cp
	}
	return m
}

func (m *mockProviders) GetByID(_ context.Context, id uuid.UUID) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockProviders) ListEligible(_ context.Context) ([]*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Provider
	for _, p := range m.providers {
		if p.Status == models.ProviderStatusActive && p.WorkStatus == models.WorkStatusResting && p.DailyClaimed < p.DailyQuota {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProviders) IncrementClaimedTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok || p.DailyClaimed >= p.DailyQuota {
		return false, nil
	}
	p.DailyClaimed++
	return true, nil
}

func (m *mockProviders) FamiliarProviders(_ context.Context, _ uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool, len(m.familiar))
	for id, v := range m.familiar {
		out[id] = v
	}
	return out, nil
}

func (m *mockProviders) claimed(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.providers[id].DailyClaimed
}

// --- customer repository mock ---

type mockCustomers struct {
	customers map[uuid.UUID]*models.Customer
}

func (m *mockCustomers) GetByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

// --- audit writer mock ---

type mockAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (m *mockAudit) CreateTx(_ context.Context, _ pgx.Tx, a *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockAudit) byKind(kind string) []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// --- notifier mock ---

type mockNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (m *mockNotifier) Notify(_ context.Context, n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

func (m *mockNotifier) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, n := range m.sent {
		out = append(out, n.Kind)
	}
	return out
}

// --- wallet repository mock ---

type mockWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet // keyed by provider id
}

func newMockWallets(wallets ...*models.Wallet) *mockWallets {
	m := &mockWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
	for _, w := range wallets {
		cp := *w
		m.wallets[w.ProviderID] = &cp
	}
	return m
}

func (m *mockWallets) EnsureForUpdateTx(_ context.Context, _ pgx.Tx, providerID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[providerID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), ProviderID: providerID}
		m.wallets[providerID] = w
	}
	cp := *w
	return &cp, nil
}

func (m *mockWallets) ApplyCreditTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, balanceDelta, earnedDelta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.byWalletID(walletID)
	w.BalanceCents += balanceDelta
	w.TotalEarnedCents += earnedDelta
	return w.BalanceCents, nil
}

func (m *mockWallets) DeductTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.byWalletID(walletID)
	if w.BalanceCents < amount {
		return 0, false, nil
	}
	w.BalanceCents -= amount
	w.TotalEarnedCents -= amount
	return w.BalanceCents, true, nil
}

// byWalletID must be called with the mutex held.
func (m *mockWallets) byWalletID(walletID uuid.UUID) *models.Wallet {
	for _, w := range m.wallets {
		if w.ID == walletID {
			return w
		}
	}
	panic("unknown wallet " + walletID.String())
}

func (m *mockWallets) forProvider(providerID uuid.UUID) models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.wallets[providerID]
}

// --- debt repository mock ---

type mockDebts struct {
	mu         sync.Mutex
	debts      []*models.Debt
	deductions []*models.DebtDeduction
}

func (m *mockDebts) CreateTx(_ context.Context, _ pgx.Tx, d *models.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.debts = append(m.debts, &cp)
	return nil
}

func (m *mockDebts) ListPendingForUpdateTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID) ([]*models.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Debt
	for _, d := range m.debts {
		if d.WalletID == walletID && d.Status == models.DebtStatusPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDebts) ApplyDeductionTx(_ context.Context, _ pgx.Tx, debtID, jobID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.debts {
		if d.ID != debtID {
			continue
		}
		d.RemainingCents -= amount
		if d.RemainingCents <= 0 {
			d.Status = models.DebtStatusCompleted
		}
		m.deductions = append(m.deductions, &models.DebtDeduction{
			ID: uuid.New(), DebtID: debtID, JobID: jobID, AmountCents: amount,
		})
		return nil
	}
	return pgx.ErrNoRows
}

func (m *mockDebts) all() []*models.Debt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Debt, 0, len(m.debts))
	for _, d := range m.debts {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// --- ledger writer mock ---

type mockLedger struct {
	mu      sync.Mutex
	entries []*models.WalletTransaction
}

func (m *mockLedger) CreateTx(_ context.Context, _ pgx.Tx, t *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockLedger) all() []*models.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.WalletTransaction, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// replaySum is the ledger replay: summing signed amounts for a wallet must
// reproduce its balance.
func (m *mockLedger) replaySum(walletID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.WalletID == walletID {
			sum += e.AmountCents
		}
	}
	return sum
}

// --- rate source mock ---

type mockRates struct {
	serviceRates map[uuid.UUID]float64
	tierRates    map[string]float64
}

func (m *mockRates) ServiceRate(_ context.Context, serviceID uuid.UUID) (*float64, error) {
	if r, ok := m.serviceRates[serviceID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *mockRates) TierRate(_ context.Context, tier string) (*float64, error) {
	if r, ok := m.tierRates[tier]; ok {
		return &r, nil
	}
	return nil, nil
}
