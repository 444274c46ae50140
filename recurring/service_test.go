package recurring_test

import (
	"context"
	"testing"
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/models"
	"fakturierung-recurring/recurring"
	"fakturierung-recurring/schedule"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*recurring.Service, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addClient(clientID, accountID)
	store.addClient("foreign-client", "acc-2")
	return recurring.NewService(store, recurring.NewGenerator(&seqNumbers{}), zerolog.Nop()), store
}

func validInput() recurring.CreateInput {
	return recurring.CreateInput{
		ClientID:      clientID,
		Frequency:     schedule.Monthly,
		StartDate:     time.Date(2024, 1, 31, 15, 0, 0, 0, time.UTC),
		Currency:      "EUR",
		DiscountType:  billing.DiscountPercentage,
		DiscountValue: dec("10"),
		TaxRate:       dec("8"),
		DueDays:       30,
		Items:         []recurring.ItemInput{{Title: " Retainer ", Quantity: dec("2"), UnitPrice: 5000}},
	}
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	def, err := svc.Create(context.Background(), accountID, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, def.Id)
	assert.Equal(t, models.RecurringActive, def.Status)
	assert.Equal(t, day(2024, 1, 31), def.StartDate)
	assert.Equal(t, def.StartDate, def.NextRunAt)
	assert.Nil(t, def.LastRunAt)
	assert.Equal(t, "Retainer", def.Items[0].Title)
	assert.Equal(t, 1, def.Items[0].Position)
	assert.Equal(t, def.Id, store.def(def.Id).Id)
}

func TestServiceCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(in *recurring.CreateInput)
		field  string
	}{
		{"no items", func(in *recurring.CreateInput) { in.Items = nil }, "items"},
		{"empty group only", func(in *recurring.CreateInput) {
			in.Items = nil
			in.Groups = []recurring.GroupInput{{Name: "Empty"}}
		}, "items"},
		{"zero due days", func(in *recurring.CreateInput) { in.DueDays = 0 }, "due_days"},
		{"due days above a year", func(in *recurring.CreateInput) { in.DueDays = 366 }, "due_days"},
		{"negative discount", func(in *recurring.CreateInput) { in.DiscountValue = dec("-1") }, "discount_value"},
		{"percentage above 100", func(in *recurring.CreateInput) { in.DiscountValue = dec("100.5") }, "discount_value"},
		{"unknown discount type", func(in *recurring.CreateInput) { in.DiscountType = "BOGO" }, "discount_type"},
		{"tax above 100", func(in *recurring.CreateInput) { in.TaxRate = dec("101") }, "tax_rate"},
		{"negative tax", func(in *recurring.CreateInput) { in.TaxRate = dec("-0.5") }, "tax_rate"},
		{"zero quantity", func(in *recurring.CreateInput) { in.Items[0].Quantity = decimal.Zero }, "items[0].quantity"},
		{"negative unit price", func(in *recurring.CreateInput) { in.Items[0].UnitPrice = -1 }, "items[0].unit_price"},
		{"blank title", func(in *recurring.CreateInput) { in.Items[0].Title = "" }, "items[0].title"},
		{"unknown frequency", func(in *recurring.CreateInput) { in.Frequency = "DAILY" }, "frequency"},
		{"missing start date", func(in *recurring.CreateInput) { in.StartDate = time.Time{} }, "start_date"},
		{"end before start", func(in *recurring.CreateInput) { in.EndDate = timePtr(day(2024, 1, 1)) }, "end_date"},
		{"missing client", func(in *recurring.CreateInput) { in.ClientID = "" }, "client_id"},
		{"unknown client", func(in *recurring.CreateInput) { in.ClientID = "nope" }, "client_id"},
		{"client of another account", func(in *recurring.CreateInput) { in.ClientID = "foreign-client" }, "client_id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, store := newService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), accountID, in)

			var verr *recurring.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			store.mu.Lock()
			assert.Empty(t, store.state.defs)
			store.mu.Unlock()
		})
	}
}

func TestServiceCreateAcceptsGroupedItemsOnly(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	in := validInput()
	in.Items = nil
	in.Groups = []recurring.GroupInput{{Name: "Design", Items: []recurring.ItemInput{{Title: "Hours", Quantity: dec("7.5"), UnitPrice: 9000}}}}

	def, err := svc.Create(context.Background(), accountID, in)
	require.NoError(t, err)
	require.Len(t, def.Groups, 1)
	assert.Equal(t, 1, def.ItemCount())
}

func TestServiceUpdate(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	def, err := svc.Create(context.Background(), accountID, validInput())
	require.NoError(t, err)

	freq := schedule.Quarterly
	end := day(2025, 1, 31)
	due := 10
	updated, err := svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{
		Frequency: &freq,
		EndDate:   &end,
		DueDays:   &due,
		Items: []recurring.ItemInput{
			{Title: "A", Quantity: dec("1"), UnitPrice: 100},
			{Title: "B", Quantity: dec("2"), UnitPrice: 200},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, schedule.Quarterly, updated.Frequency)
	assert.Equal(t, end, *updated.EndDate)
	assert.Equal(t, 10, updated.DueDays)
	require.Len(t, updated.Items, 2)
	assert.Equal(t, "B", store.def(def.Id).Items[1].Title)
}

func TestServiceUpdateKeepsItemsWhenOmitted(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	def, err := svc.Create(context.Background(), accountID, validInput())
	require.NoError(t, err)

	auto := true
	updated, err := svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{AutoSend: &auto})
	require.NoError(t, err)
	assert.True(t, updated.AutoSend)
	assert.Len(t, updated.Items, 1)
}

func TestServiceUpdateRejectsInvalidResult(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	def, err := svc.Create(context.Background(), accountID, validInput())
	require.NoError(t, err)

	before := day(2024, 1, 1)
	_, err = svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{NextRunAt: &before})
	var verr *recurring.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "next_run_at", verr.Field)

	_, err = svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{Items: []recurring.ItemInput{}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)

	foreign := "foreign-client"
	_, err = svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{ClientID: &foreign})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "client_id", verr.Field)

	assert.Equal(t, clientID, store.def(def.Id).ClientId)
	assert.Len(t, store.def(def.Id).Items, 1)
}

func TestServiceUpdateCanceled(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	def, err := svc.Create(context.Background(), accountID, validInput())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), accountID, def.Id)
	require.NoError(t, err)

	due := 5
	_, err = svc.Update(context.Background(), accountID, def.Id, recurring.UpdateInput{DueDays: &due})
	assert.ErrorIs(t, err, recurring.ErrDefinitionCanceled)
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, accountID, validInput())
	require.NoError(t, err)

	paused, err := svc.Pause(ctx, accountID, def.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringPaused, paused.Status)
	assert.Equal(t, def.NextRunAt, paused.NextRunAt)

	_, err = svc.Pause(ctx, accountID, def.Id)
	assert.ErrorIs(t, err, recurring.ErrInvalidTransition)

	resumed, err := svc.Resume(ctx, accountID, def.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringActive, resumed.Status)
	assert.Equal(t, def.NextRunAt, store.def(def.Id).NextRunAt)

	_, err = svc.Cancel(ctx, accountID, def.Id)
	require.NoError(t, err)
	_, err = svc.Resume(ctx, accountID, def.Id)
	assert.ErrorIs(t, err, recurring.ErrInvalidTransition)
	assert.Equal(t, models.RecurringCanceled, store.def(def.Id).Status)
}

func TestServiceNotFound(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	other := definition("other-account", day(2024, 1, 1))
	other.AccountId = "acc-2"
	store.put(other)

	_, err := svc.Get(context.Background(), accountID, "other-account")
	var nf *recurring.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "other-account", nf.ID)
	assert.ErrorIs(t, err, recurring.ErrNotFound)

	_, err = svc.Pause(context.Background(), accountID, "missing")
	assert.ErrorIs(t, err, recurring.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), accountID, "missing"), recurring.ErrNotFound)
}

func TestServiceListAndDelete(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		def, err := svc.Create(ctx, accountID, validInput())
		require.NoError(t, err)
		ids = append(ids, def.Id)
	}
	_, err := svc.Pause(ctx, accountID, ids[0])
	require.NoError(t, err)

	active := models.RecurringActive
	defs, total, err := svc.List(ctx, accountID, recurring.ListFilter{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, defs, 2)

	defs, total, err = svc.List(ctx, accountID, recurring.ListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, defs, 1)

	bad := models.RecurringStatus("DONE")
	_, _, err = svc.List(ctx, accountID, recurring.ListFilter{Status: &bad})
	var verr *recurring.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, svc.Delete(ctx, accountID, ids[1]))
	_, err = svc.Get(ctx, accountID, ids[1])
	assert.ErrorIs(t, err, recurring.ErrNotFound)
}

func TestServiceGenerateNow(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, accountID, validInput())
	require.NoError(t, err)

	now := time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)
	inv, err := svc.GenerateNow(ctx, accountID, def.Id, now)
	require.NoError(t, err)

	assert.Equal(t, int64(9720), inv.Total)
	assert.Equal(t, day(2024, 3, 11), inv.DueDate)
	stored := store.def(def.Id)
	assert.Equal(t, day(2024, 2, 10), *stored.LastRunAt)
	assert.Equal(t, day(2024, 3, 10), stored.NextRunAt)
	assert.Len(t, store.invoices(), 1)
}

func TestServiceGenerateNowPausedIsAllowed(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, accountID, validInput())
	require.NoError(t, err)
	_, err = svc.Pause(ctx, accountID, def.Id)
	require.NoError(t, err)

	_, err = svc.GenerateNow(ctx, accountID, def.Id, day(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, models.RecurringPaused, store.def(def.Id).Status)
}

func TestServiceGenerateNowRejected(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, accountID, validInput())
	require.NoError(t, err)

	_, err = svc.GenerateNow(ctx, accountID, def.Id, day(2024, 1, 30))
	var verr *recurring.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start_date", verr.Field)

	_, err = svc.Cancel(ctx, accountID, def.Id)
	require.NoError(t, err)
	_, err = svc.GenerateNow(ctx, accountID, def.Id, day(2024, 2, 1))
	assert.ErrorIs(t, err, recurring.ErrDefinitionCanceled)
	assert.Empty(t, store.invoices())
}

func TestServiceGenerateNowPropagatesFailure(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, accountID, validInput())
	require.NoError(t, err)
	store.updateScheduleFn = func(string) error { return recurring.ErrScheduleConflict }

	_, err = svc.GenerateNow(ctx, accountID, def.Id, day(2024, 2, 1))
	var genErr *recurring.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, recurring.ErrScheduleConflict)
	assert.Empty(t, store.invoices())
	assert.Equal(t, day(2024, 1, 31), store.def(def.Id).NextRunAt)
}

func TestServicePreview(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	in := validInput()
	in.EndDate = timePtr(day(2024, 4, 30))
	def, err := svc.Create(ctx, accountID, in)
	require.NoError(t, err)

	p, err := svc.Preview(ctx, accountID, def.Id, 6, day(2024, 1, 15))
	require.NoError(t, err)
	assert.False(t, p.Due)
	assert.Equal(t, billing.Totals{Subtotal: 10000, DiscountAmount: 1000, TaxAmount: 720, Total: 9720}, p.Totals)
	assert.Equal(t, []time.Time{day(2024, 1, 31), day(2024, 2, 29), day(2024, 3, 29), day(2024, 4, 29)}, p.UpcomingRuns)
	assert.Empty(t, store.invoices())

	_, err = svc.Pause(ctx, accountID, def.Id)
	require.NoError(t, err)
	p, err = svc.Preview(ctx, accountID, def.Id, 0, day(2024, 2, 1))
	require.NoError(t, err)
	assert.Empty(t, p.UpcomingRuns)
	assert.False(t, p.Due)

	_, err = svc.Resume(ctx, accountID, def.Id)
	require.NoError(t, err)
	p, err = svc.Preview(ctx, accountID, def.Id, 1, day(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, p.Due)
	assert.Equal(t, []time.Time{day(2024, 1, 31)}, p.UpcomingRuns)
}

// interleavingStore runs afterFind once, right after the first definition
// read, outside any lock. It lets a batch commit between a user action's
// read and its write.
type interleavingStore struct {
	*memStore
	afterFind func()
}

func (s *interleavingStore) Transaction(ctx context.Context, fn func(tx recurring.Store) error) error {
	return fn(s)
}

func (s *interleavingStore) FindRecurringDefinition(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	def, err := s.memStore.FindRecurringDefinition(ctx, accountID, id)
	if f := s.afterFind; f != nil {
		s.afterFind = nil
		f()
	}
	return def, err
}

func TestServiceUserActionDoesNotUndoConcurrentAdvance(t *testing.T) {
	t.Parallel()

	due := 21
	actions := map[string]func(*recurring.Service, context.Context, string) error{
		"pause": func(svc *recurring.Service, ctx context.Context, id string) error {
			_, err := svc.Pause(ctx, accountID, id)
			return err
		},
		"cancel": func(svc *recurring.Service, ctx context.Context, id string) error {
			_, err := svc.Cancel(ctx, accountID, id)
			return err
		},
		"update": func(svc *recurring.Service, ctx context.Context, id string) error {
			_, err := svc.Update(ctx, accountID, id, recurring.UpdateInput{DueDays: &due})
			return err
		},
	}

	for name, action := range actions {
		action := action
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := newMemStore()
			store.addClient(clientID, accountID)
			store.put(definition("d1", day(2024, 3, 1)))
			gen := recurring.NewGenerator(&seqNumbers{})

			racing := &interleavingStore{memStore: store}
			racing.afterFind = func() {
				def := store.def("d1")
				_, err := gen.GenerateAndAdvance(ctx, store, &def, day(2024, 3, 1))
				require.NoError(t, err)
			}
			svc := recurring.NewService(racing, gen, zerolog.Nop())

			err := action(svc, ctx, "d1")
			assert.ErrorIs(t, err, recurring.ErrScheduleConflict)

			stored := store.def("d1")
			assert.Equal(t, models.RecurringActive, stored.Status)
			assert.Equal(t, day(2024, 4, 1), stored.NextRunAt)
			assert.Equal(t, 14, stored.DueDays)
			require.NotNil(t, stored.LastRunAt)
			assert.Equal(t, day(2024, 3, 1), *stored.LastRunAt)

			// the next batch must not bill March again
			results, err := recurring.NewProcessor(store, gen).ProcessDue(ctx, day(2024, 3, 2))
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Len(t, store.invoices(), 1)

			// a retry reads the advanced schedule and succeeds
			require.NoError(t, action(recurring.NewService(store, gen, zerolog.Nop()), ctx, "d1"))
			assert.Equal(t, day(2024, 4, 1), store.def("d1").NextRunAt)
		})
	}
}

func TestServiceUpdateNeverWritesLastRunAt(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	def := definition("d1", day(2024, 3, 1))
	def.LastRunAt = timePtr(day(2024, 2, 1))
	store.put(def)

	next := day(2024, 3, 5)
	updated, err := svc.Update(ctx, accountID, "d1", recurring.UpdateInput{NextRunAt: &next})
	require.NoError(t, err)

	assert.Equal(t, next, updated.NextRunAt)
	require.NotNil(t, store.def("d1").LastRunAt)
	assert.Equal(t, day(2024, 2, 1), *store.def("d1").LastRunAt)
}

func TestServiceInvalidFrequencyListsChoices(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	in := validInput()
	in.Frequency = "DAILY"

	_, err := svc.Create(context.Background(), accountID, in)
	var verr *recurring.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "frequency", verr.Field)
	assert.Equal(t, "must be one of WEEKLY, BIWEEKLY, MONTHLY, QUARTERLY, YEARLY", verr.Message)
}
