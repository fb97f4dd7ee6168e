package customers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/audit"
)

type memoryRepo struct {
	nextID    int64
	customers []Customer
}

func (r *memoryRepo) Insert(ctx context.Context, c Customer) (Customer, error) {
	for _, existing := range r.customers {
		if existing.Phone == c.Phone {
			return Customer{}, ErrDuplicatePhone
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.customers = append(r.customers, c)
	return c, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Customer, error) {
	for _, c := range r.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return Customer{}, ErrCustomerNotFound
}

func (r *memoryRepo) List(ctx context.Context, search string, limit int) ([]Customer, error) {
	var out []Customer
	for _, c := range r.customers {
		if search == "" || strings.HasPrefix(c.Name, search) || strings.HasPrefix(c.Phone, search) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeAudit struct {
	events []audit.EventType
}

func (f *fakeAudit) Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error) {
	f.events = append(f.events, event)
	return audit.Record{}, nil
}

func TestCreateAssignsTimestampsAndAudits(t *testing.T) {
	repo := &memoryRepo{}
	auditor := &fakeAudit{}
	svc := NewService(repo, auditor)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	created, err := svc.Create(context.Background(), Customer{Name: "Dana", Phone: "0812000111", BranchID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), created.CreatedAt)
	require.Equal(t, []audit.EventType{audit.EventCustomerCreate}, auditor.events)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil)
	_, err := svc.Create(context.Background(), Customer{Phone: "0812000111"})
	require.Error(t, err)
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), Customer{Name: "Dana", Phone: "0812000111"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), Customer{Name: "Remy", Phone: "0812000111"})
	require.ErrorIs(t, err, ErrDuplicatePhone)
}

func TestListSearchesByPrefix(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)

	for _, c := range []Customer{
		{Name: "Dana", Phone: "0812000111"},
		{Name: "Daniela", Phone: "0812000222"},
		{Name: "Remy", Phone: "0899000333"},
	} {
		_, err := svc.Create(context.Background(), c)
		require.NoError(t, err)
	}

	found, err := svc.List(context.Background(), "Dan", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = svc.List(context.Background(), "0899", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Remy", found[0].Name)
}
