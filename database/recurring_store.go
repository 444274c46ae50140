package database

import (
	"context"
	"errors"
	"time"

	"fakturierung-recurring/models"
	"fakturierung-recurring/recurring"
	"fakturierung-recurring/schedule"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecurringStore is the postgres implementation of recurring.Store.
type RecurringStore struct {
	db *gorm.DB
}

var _ recurring.Store = (*RecurringStore)(nil)

func NewRecurringStore(db *gorm.DB) *RecurringStore {
	return &RecurringStore{db: db}
}

// Transaction nests as a savepoint when the store is already bound to a
// transaction (e.g. the per-request one).
func (s *RecurringStore) Transaction(ctx context.Context, fn func(tx recurring.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RecurringStore{db: tx})
	})
}

func (s *RecurringStore) FindClientForAccount(ctx context.Context, clientID, accountID string) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", clientID, accountID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, recurring.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *RecurringStore) CreateRecurringDefinition(ctx context.Context, def *models.RecurringDefinition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(def).Error; err != nil {
			return err
		}
		return insertItems(tx, def)
	})
}

// SaveRecurringDefinition is guarded on next_run_at so a user edit never
// writes back a schedule that a concurrent run has already advanced.
func (s *RecurringStore) SaveRecurringDefinition(ctx context.Context, def *models.RecurringDefinition, expectedNextRunAt time.Time, replaceItems bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := saveDefinitionQuery(tx, def, expectedNextRunAt).Updates(def)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, def.AccountId, def.Id)
		}
		if !replaceItems {
			return nil
		}
		if err := deleteItems(tx, def.Id); err != nil {
			return err
		}
		return insertItems(tx, def)
	})
}

func saveDefinitionQuery(tx *gorm.DB, def *models.RecurringDefinition, expectedNextRunAt time.Time) *gorm.DB {
	return tx.Model(def).
		Where("account_id = ? AND next_run_at = ?", def.AccountId, expectedNextRunAt).
		Select("*").
		Omit("id", "account_id", "created_at", "last_run_at", clause.Associations)
}

// missingOrConflict tells an unknown definition from one whose schedule
// moved since it was read.
func missingOrConflict(tx *gorm.DB, accountID, id string) error {
	var count int64
	if err := tx.Model(&models.RecurringDefinition{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return recurring.ErrNotFound
	}
	return recurring.ErrScheduleConflict
}

func (s *RecurringStore) FindRecurringDefinition(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	var def models.RecurringDefinition
	err := preloadItems(s.db.WithContext(ctx)).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, recurring.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *RecurringStore) ListRecurringDefinitions(ctx context.Context, accountID string, filter recurring.ListFilter) ([]models.RecurringDefinition, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.RecurringDefinition{}).Where("account_id = ?", accountID)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var defs []models.RecurringDefinition
	err := preloadItems(q).
		Order("created_at DESC, id").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&defs).Error
	if err != nil {
		return nil, 0, err
	}
	return defs, total, nil
}

func (s *RecurringStore) DeleteRecurringDefinition(ctx context.Context, accountID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.RecurringDefinition{}).
			Where("id = ? AND account_id = ?", id, accountID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return recurring.ErrNotFound
		}
		if err := deleteItems(tx, id); err != nil {
			return err
		}
		return tx.Where("id = ? AND account_id = ?", id, accountID).Delete(&models.RecurringDefinition{}).Error
	})
}

func (s *RecurringStore) FindDueRecurringDefinitions(ctx context.Context, now time.Time) ([]models.RecurringDefinition, error) {
	var defs []models.RecurringDefinition
	err := preloadItems(dueQuery(s.db.WithContext(ctx), now)).Find(&defs).Error
	return defs, err
}

// dueQuery selects the due set at now. endDate is the last day on which a
// run may still happen: end_date >= today, the inclusive upper bound
// recorded as the "endDate boundary" decision in DESIGN.md.
func dueQuery(db *gorm.DB, now time.Time) *gorm.DB {
	today := schedule.Day(now)
	return db.
		Where("status = ? AND next_run_at <= ? AND (end_date IS NULL OR end_date >= ?)",
			models.RecurringActive, today, today).
		Order("next_run_at, id")
}

func (s *RecurringStore) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return s.db.WithContext(ctx).Create(invoice).Error
}

func (s *RecurringStore) UpdateRecurringSchedule(ctx context.Context, id string, update recurring.ScheduleUpdate) error {
	res := scheduleUpdateQuery(s.db.WithContext(ctx), id, update.ExpectedNextRunAt).
		Updates(map[string]interface{}{
			"last_run_at": update.LastRunAt,
			"next_run_at": update.NextRunAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return recurring.ErrScheduleConflict
	}
	return nil
}

func scheduleUpdateQuery(db *gorm.DB, id string, expectedNextRunAt time.Time) *gorm.DB {
	return db.Model(&models.RecurringDefinition{}).
		Where("id = ? AND next_run_at = ? AND status <> ?", id, expectedNextRunAt, models.RecurringCanceled)
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", ungroupedItems).
		Preload("Groups", byPosition).
		Preload("Groups.Items", byPosition)
}

// ungroupedItems keeps grouped items out of RecurringDefinition.Items; they
// are loaded through their group.
func ungroupedItems(db *gorm.DB) *gorm.DB {
	return db.Where("group_id IS NULL").Order("position")
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// insertItems writes the ungrouped items and the groups of def. Grouped
// items carry both their group and their definition id.
func insertItems(tx *gorm.DB, def *models.RecurringDefinition) error {
	for i := range def.Items {
		def.Items[i].Id = ""
		def.Items[i].DefinitionId = def.Id
		def.Items[i].GroupId = nil
	}
	if len(def.Items) > 0 {
		if err := tx.Create(&def.Items).Error; err != nil {
			return err
		}
	}

	for g := range def.Groups {
		group := &def.Groups[g]
		group.Id = ""
		group.DefinitionId = def.Id
		if err := tx.Omit(clause.Associations).Create(group).Error; err != nil {
			return err
		}
		for i := range group.Items {
			groupID := group.Id
			group.Items[i].Id = ""
			group.Items[i].DefinitionId = def.Id
			group.Items[i].GroupId = &groupID
		}
		if len(group.Items) > 0 {
			if err := tx.Create(&group.Items).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func deleteItems(tx *gorm.DB, definitionID string) error {
	if err := tx.Where("definition_id = ?", definitionID).Delete(&models.RecurringItem{}).Error; err != nil {
		return err
	}
	return tx.Where("definition_id = ?", definitionID).Delete(&models.RecurringItemGroup{}).Error
}
