package assistant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/auth"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/customers"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/orders"
	"github.com/savor-erp/savor-erp/internal/rbac"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// CatalogPort is the menu surface the executor drives.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.MenuItem, error)
	ListItems(ctx context.Context) ([]catalog.MenuItem, error)
	CreateItem(ctx context.Context, item catalog.MenuItem, reason string) (catalog.MenuItem, error)
	UpdateItem(ctx context.Context, item catalog.MenuItem, reason string) (catalog.MenuItem, error)
}

// InventoryPort is the stock surface the executor drives.
type InventoryPort interface {
	GetItem(ctx context.Context, itemID int64) (inventory.Item, error)
	Balances(ctx context.Context, itemID int64) ([]inventory.Balance, error)
	ApplyMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
	LowStock(ctx context.Context) ([]inventory.LowStockRow, error)
}

// CustomersPort registers customers.
type CustomersPort interface {
	Create(ctx context.Context, c customers.Customer) (customers.Customer, error)
	List(ctx context.Context, search string, limit int) ([]customers.Customer, error)
}

// UsersPort registers accounts.
type UsersPort interface {
	CreateUser(ctx context.Context, input auth.CreateUserInput) (auth.User, error)
	Users(ctx context.Context) ([]auth.User, error)
}

// LedgerPort serves the trial balance report.
type LedgerPort interface {
	TrialBalance(ctx context.Context) (ledger.TrialBalance, error)
}

// OrdersPort serves the sales report.
type OrdersPort interface {
	SalesSummary(ctx context.Context, from, to time.Time) (orders.SalesSummary, error)
}

// RBACPort checks the executing actor's grants.
type RBACPort interface {
	HasAll(ctx context.Context, role string, required ...rbac.Permission) (bool, error)
}

// AuditPort records assistant executions.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// AgentPort proposes actions from natural language.
type AgentPort interface {
	Propose(ctx context.Context, message string) (*Action, string, error)
}

var (
	// ErrActionBlocked indicates the guard rejected the action.
	ErrActionBlocked = errors.New("assistant: action blocked by guard")
	// ErrPermissionDenied indicates the actor lacks the required grant.
	ErrPermissionDenied = errors.New("assistant: missing permission for action")
)

// Service previews and executes assistant actions. Every execution re-runs
// the guard against live state and re-checks the actor's permission, so a
// stale preview can never slip a mutation through.
type Service struct {
	catalog   CatalogPort
	inventory InventoryPort
	customers CustomersPort
	users     UsersPort
	ledger    LedgerPort
	orders    OrdersPort
	rbac      RBACPort
	audit     AuditPort
	agent     AgentPort
}

func NewService(
	cat CatalogPort,
	inv InventoryPort,
	cust CustomersPort,
	users UsersPort,
	led LedgerPort,
	ord OrdersPort,
	authz RBACPort,
	auditor AuditPort,
	agent AgentPort,
) *Service {
	return &Service{
		catalog:   cat,
		inventory: inv,
		customers: cust,
		users:     users,
		ledger:    led,
		orders:    ord,
		rbac:      authz,
		audit:     auditor,
		agent:     agent,
	}
}

// Propose asks the agent for an action and returns the guard preview along
// with the agent's narration. Nothing is executed.
func (s *Service) Propose(ctx context.Context, message string) (*Action, Decision, string, error) {
	if s.agent == nil {
		return nil, Decision{}, "", errors.New("assistant: no agent configured")
	}
	action, narration, err := s.agent.Propose(ctx, message)
	if err != nil {
		return nil, Decision{}, "", err
	}
	if action == nil {
		return nil, Decision{}, narration, nil
	}
	decision, err := s.Preview(ctx, *action)
	if err != nil {
		return nil, Decision{}, "", err
	}
	return action, decision, narration, nil
}

// Preview loads the relevant entity state and runs the guard.
func (s *Service) Preview(ctx context.Context, action Action) (Decision, error) {
	snap, err := s.loadSnapshot(ctx, action)
	if err != nil {
		return Decision{}, err
	}
	return Guard(action, snap), nil
}

// ExecutionResult reports one executed action.
type ExecutionResult struct {
	Decision Decision        `json:"decision"`
	Output   json.RawMessage `json:"output,omitempty"`
}

// Execute re-guards the action against live state, checks the actor's
// permission and applies the mutation through the owning service.
func (s *Service) Execute(ctx context.Context, action Action) (ExecutionResult, error) {
	actor := shared.ActorFromContext(ctx)
	if actor == nil {
		return ExecutionResult{}, audit.ErrNoActor
	}
	decision, err := s.Preview(ctx, action)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !decision.CanExecute {
		return ExecutionResult{Decision: decision}, fmt.Errorf("%w: %s", ErrActionBlocked, decision.Reason)
	}
	allowed, err := s.rbac.HasAll(ctx, actor.Role, decision.Permission)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !allowed {
		return ExecutionResult{Decision: decision}, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Permission)
	}

	output, err := s.dispatch(ctx, action, actor)
	if err != nil {
		return ExecutionResult{Decision: decision}, err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventAssistantExecution, audit.Payload{
			Before: decision.Before,
			After:  decision.After,
			Reason: string(action.Kind),
		}, map[string]any{"kind": action.Kind, "permission": decision.Permission})
	}
	return ExecutionResult{Decision: decision, Output: output}, nil
}

func (s *Service) loadSnapshot(ctx context.Context, action Action) (Snapshot, error) {
	snap := Snapshot{
		InventoryItems: map[int64]inventory.Item{},
		StockQty:       map[int64]map[int64]float64{},
		MenuItems:      map[int64]catalog.MenuItem{},
		Usernames:      map[string]bool{},
		CustomerPhones: map[string]bool{},
	}
	switch action.Kind {
	case KindUpdateInventory:
		if action.UpdateInventory == nil {
			return snap, nil
		}
		item, err := s.inventory.GetItem(ctx, action.UpdateInventory.ItemID)
		if err != nil {
			if errors.Is(err, inventory.ErrItemNotFound) {
				return snap, nil
			}
			return Snapshot{}, err
		}
		snap.InventoryItems[item.ID] = item
		balances, err := s.inventory.Balances(ctx, item.ID)
		if err != nil {
			return Snapshot{}, err
		}
		qty := map[int64]float64{}
		for _, b := range balances {
			qty[b.WarehouseID] = b.Qty
		}
		snap.StockQty[item.ID] = qty
	case KindCreateMenuItem:
		items, err := s.catalog.ListItems(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		for _, item := range items {
			snap.MenuItems[item.ID] = item
		}
	case KindUpdateMenuItem, KindChangePrice:
		var id int64
		if action.UpdateMenuItem != nil {
			id = action.UpdateMenuItem.ItemID
		}
		if action.ChangePrice != nil {
			id = action.ChangePrice.ItemID
		}
		item, err := s.catalog.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrItemNotFound) {
				return snap, nil
			}
			return Snapshot{}, err
		}
		snap.MenuItems[item.ID] = item
	case KindCreateCustomer:
		if action.CreateCustomer == nil || action.CreateCustomer.Phone == "" {
			return snap, nil
		}
		matches, err := s.customers.List(ctx, action.CreateCustomer.Phone, 10)
		if err != nil {
			return Snapshot{}, err
		}
		for _, c := range matches {
			snap.CustomerPhones[c.Phone] = true
		}
	case KindCreateUser:
		users, err := s.users.Users(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		for _, u := range users {
			snap.Usernames[u.Username] = true
		}
	}
	return snap, nil
}

func (s *Service) dispatch(ctx context.Context, action Action, actor *shared.Actor) (json.RawMessage, error) {
	switch action.Kind {
	case KindUpdateInventory:
		a := *action.UpdateInventory
		balances, err := s.inventory.Balances(ctx, a.ItemID)
		if err != nil {
			return nil, err
		}
		var current float64
		for _, b := range balances {
			if b.WarehouseID == a.WarehouseID {
				current = b.Qty
			}
		}
		delta := a.NewQty - current
		if delta == 0 {
			return marshal(map[string]any{"status": "no change"}), nil
		}
		movement, err := s.inventory.ApplyMovement(ctx, inventory.MovementInput{
			Kind:        inventory.MovementAdjustment,
			ItemID:      a.ItemID,
			WarehouseID: a.WarehouseID,
			Delta:       delta,
			Reason:      a.Reason,
			RefType:     "assistant",
			ActorID:     actor.UserID,
		})
		if err != nil {
			return nil, err
		}
		return marshal(movement), nil
	case KindCreateMenuItem:
		a := *action.CreateMenuItem
		item, err := s.catalog.CreateItem(ctx, catalog.MenuItem{
			Name:      a.Name,
			Category:  a.Category,
			Price:     a.Price,
			Available: true,
			Recipe:    a.Recipe,
		}, "assistant proposal")
		if err != nil {
			return nil, err
		}
		return marshal(item), nil
	case KindUpdateMenuItem:
		a := *action.UpdateMenuItem
		item, err := s.catalog.GetItem(ctx, a.ItemID)
		if err != nil {
			return nil, err
		}
		if a.Name != "" {
			item.Name = a.Name
		}
		if a.Category != "" {
			item.Category = a.Category
		}
		if a.Available != nil {
			item.Available = *a.Available
		}
		updated, err := s.catalog.UpdateItem(ctx, item, "assistant proposal")
		if err != nil {
			return nil, err
		}
		return marshal(updated), nil
	case KindChangePrice:
		a := *action.ChangePrice
		item, err := s.catalog.GetItem(ctx, a.ItemID)
		if err != nil {
			return nil, err
		}
		item.Price = a.NewPrice
		updated, err := s.catalog.UpdateItem(ctx, item, a.Reason)
		if err != nil {
			return nil, err
		}
		return marshal(updated), nil
	case KindCreateCustomer:
		a := *action.CreateCustomer
		customer, err := s.customers.Create(ctx, customers.Customer{
			Name:     a.Name,
			Phone:    a.Phone,
			Email:    a.Email,
			BranchID: actor.BranchID,
		})
		if err != nil {
			return nil, err
		}
		return marshal(customer), nil
	case KindCreateUser:
		a := *action.CreateUser
		password, err := tempPassword()
		if err != nil {
			return nil, err
		}
		user, err := s.users.CreateUser(ctx, auth.CreateUserInput{
			Username: a.Username,
			Name:     a.Name,
			Role:     a.Role,
			BranchID: actor.BranchID,
			Password: password,
		})
		if err != nil {
			return nil, err
		}
		// The operator hands the temporary credential to the new user; it
		// is never persisted in clear anywhere else.
		return marshal(map[string]any{"id": user.ID, "username": user.Username, "tempPassword": password}), nil
	case KindRunReport:
		return s.runReport(ctx, *action.RunReport)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedAction, action.Kind)
	}
}

func (s *Service) runReport(ctx context.Context, a RunReportAction) (json.RawMessage, error) {
	switch a.Report {
	case ReportSales:
		from, to, err := reportRange(a)
		if err != nil {
			return nil, err
		}
		summary, err := s.orders.SalesSummary(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return marshal(summary), nil
	case ReportLowStock:
		rows, err := s.inventory.LowStock(ctx)
		if err != nil {
			return nil, err
		}
		return marshal(map[string]any{"lowStock": rows}), nil
	case ReportTrialBalance:
		tb, err := s.ledger.TrialBalance(ctx)
		if err != nil {
			return nil, err
		}
		return marshal(tb), nil
	default:
		return nil, fmt.Errorf("assistant: unknown report %q", a.Report)
	}
}

func reportRange(a RunReportAction) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if a.From != "" {
		from, err = time.Parse("2006-01-02", a.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("assistant: from must be YYYY-MM-DD")
		}
	}
	if a.To != "" {
		to, err = time.Parse("2006-01-02", a.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("assistant: to must be YYYY-MM-DD")
		}
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}

func tempPassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
