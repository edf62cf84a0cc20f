package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormActivityRepo struct{ db *gorm.DB }

func NewGormActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepo{db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern leaves case alone: queries fold both sides with the
// database's LOWER, which in SQLite only folds ASCII.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (r *gormActivityRepo) ListActivities(ctx context.Context, f ActivityFilter) ([]ActivityInfo, error) {
	q := r.db.WithContext(ctx).Model(&Activity{})

	if s := strings.TrimSpace(f.Query); s != "" {
		p := containsPattern(s)
		q = q.Where(`(LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE LOWER(?) ESCAPE '\')`, p, p)
	}
	if d := strings.TrimSpace(f.Day); d != "" {
		q = q.Where(`LOWER(COALESCE(schedule, '')) LIKE LOWER(?) ESCAPE '\'`, containsPattern(d))
	}
	if f.MaxParticipants != nil {
		q = q.Where("max_participants IS NOT NULL AND max_participants <= ?", *f.MaxParticipants)
	}
	if tags := normalizeTags(f.Tags); len(tags) > 0 {
		// tags are stored as "a,b,c"; wrapping both sides in commas makes the
		// LIKE match whole tags only.
		conds := make([]string, 0, len(tags))
		args := make([]any, 0, len(tags))
		for _, t := range tags {
			conds = append(conds, `(',' || LOWER(REPLACE(COALESCE(tags, ''), ' ', '')) || ',') LIKE LOWER(?) ESCAPE '\'`)
			args = append(args, "%,"+likeEscaper.Replace(t)+",%")
		}
		q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	var activities []Activity
	if err := q.Order("name").Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if len(activities) == 0 {
		return []ActivityInfo{}, nil
	}

	ids := make([]int64, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}
	var participants []Participant
	if err := r.db.WithContext(ctx).
		Where("activity_id IN ?", ids).
		Order("id").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	byActivity := make(map[int64][]string, len(activities))
	for _, p := range participants {
		byActivity[p.ActivityID] = append(byActivity[p.ActivityID], p.Email)
	}

	out := make([]ActivityInfo, len(activities))
	for i, a := range activities {
		emails := byActivity[a.ID]
		if emails == nil {
			emails = []string{}
		}
		out[i] = ActivityInfo{Activity: a, Participants: emails}
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ReplaceAll(strings.TrimSpace(t), " ", "")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r *gormActivityRepo) GetByName(ctx context.Context, name string) (Activity, error) {
	return findActivity(r.db.WithContext(ctx), name)
}

func findActivity(tx *gorm.DB, name string) (Activity, error) {
	var a Activity
	if err := tx.Where("name = ?", name).Take(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Activity{}, ErrActivityNotFound
		}
		return Activity{}, fmt.Errorf("find activity %q: %w", name, err)
	}
	return a, nil
}

func (r *gormActivityRepo) Participants(ctx context.Context, activityID int64) ([]Participant, error) {
	var ps []Participant
	if err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("id").
		Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("participants of %d: %w", activityID, err)
	}
	return ps, nil
}

// SignUp runs the duplicate and capacity checks and the insert in one
// transaction. The unique index on (email, activity_id) still has the final
// word: a constraint violation is reported as ErrAlreadySignedUp.
func (r *gormActivityRepo) SignUp(ctx context.Context, activityName, email string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := findActivity(tx, activityName)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&Participant{}).
			Where("activity_id = ? AND email = ?", a.ID, email).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check signup: %w", err)
		}
		if existing > 0 {
			return ErrAlreadySignedUp
		}

		if a.MaxParticipants != nil {
			var count int64
			if err := tx.Model(&Participant{}).
				Where("activity_id = ?", a.ID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if count >= int64(*a.MaxParticipants) {
				return ErrActivityFull
			}
		}

		p := Participant{Email: email, ActivityID: a.ID}
		if err := tx.Omit(clause.Associations).Create(&p).Error; err != nil {
			switch {
			case errors.Is(err, gorm.ErrDuplicatedKey):
				return ErrAlreadySignedUp
			case errors.Is(err, ErrInvalidEmail):
				return err
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		return nil
	})
}

func (r *gormActivityRepo) Unregister(ctx context.Context, activityName, email string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := findActivity(tx, activityName)
		if err != nil {
			return err
		}

		var p Participant
		if err := tx.Where("activity_id = ? AND email = ?", a.ID, email).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotSignedUp
			}
			return fmt.Errorf("find participant: %w", err)
		}

		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		return nil
	})
}

func (r *gormActivityRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
