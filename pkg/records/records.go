// Package records maps users and job listings onto the record store. Every
// store call goes through the retry executor.
package records

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobybot/pkg/retry"
	"jobybot/pkg/store"
)

// Placeholder is stored for listing fields copied from an owner without a profile.
const Placeholder = "Не указан"

type Role string

const (
	RoleSeeker Role = "seeker"
	RolePoster Role = "poster"
)

// ParseRole returns the role named s.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleSeeker:
		return RoleSeeker, true
	case RolePoster:
		return RolePoster, true
	}
	return "", false
}

// Roles is a set of roles kept in insertion order.
type Roles []Role

func ParseRoles(s string) Roles {
	var out Roles
	for _, part := range strings.Split(s, ",") {
		if r, ok := ParseRole(part); ok {
			out = out.With(r)
		}
	}
	return out
}

func (rs Roles) Has(r Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// With returns rs plus r. rs is returned as is when r is already present.
func (rs Roles) With(r Role) Roles {
	if rs.Has(r) {
		return rs
	}
	out := make(Roles, 0, len(rs)+1)
	out = append(out, rs...)
	return append(out, r)
}

func (rs Roles) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

type User struct {
	TelegramID int64
	UserName   string
	Name       string
	City       string
	Phone      string
	Roles      Roles
	CreatedAt  time.Time
}

type Job struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	Price       int64
	City        string
	Contact     string
	CreatedAt   time.Time
}

// Repository reads and writes users and jobs.
type Repository struct {
	store  store.Store
	exec   retry.Executor
	logger *zap.Logger
	now    func() time.Time
}

func NewRepository(s store.Store, exec retry.Executor, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: s, exec: exec, logger: logger, now: time.Now}
}

// FindUser returns nil without an error when the user has no record.
func (r *Repository) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	rows, err := retry.Do(ctx, r.exec, "select_user", func(ctx context.Context) ([]store.Row, error) {
		return r.store.Select(ctx, store.TableUsers, store.Filter{"telegram_id": telegramID}, store.Limit(1))
	})
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", telegramID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	u := userFromRow(rows[0])
	return &u, nil
}

// SaveRegistration stores the profile of u and adds role to its roles. An
// existing record is updated in place.
func (r *Repository) SaveRegistration(ctx context.Context, u User, role Role) (*User, error) {
	existing, err := r.FindUser(ctx, u.TelegramID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		u.Roles = u.Roles.With(role)
		u.CreatedAt = r.now().UTC()
		err := retry.Run(ctx, r.exec, "insert_user", func(ctx context.Context) error {
			return r.store.Insert(ctx, store.TableUsers, userRow(u))
		})
		if err != nil {
			return nil, fmt.Errorf("insert user %d: %w", u.TelegramID, err)
		}
		r.logger.Info("User registered", zap.Int64("user_id", u.TelegramID), zap.String("role", string(role)))
		return &u, nil
	}

	merged := *existing
	merged.Name = u.Name
	merged.City = u.City
	merged.Phone = u.Phone
	if u.UserName != "" {
		merged.UserName = u.UserName
	}
	merged.Roles = existing.Roles.With(role)

	patch := store.Row{
		"name":     merged.Name,
		"city":     merged.City,
		"phone":    merged.Phone,
		"username": merged.UserName,
		"roles":    merged.Roles.String(),
	}
	if err := r.update(ctx, "update_user", u.TelegramID, patch); err != nil {
		return nil, err
	}
	r.logger.Info("User profile updated", zap.Int64("user_id", u.TelegramID), zap.String("roles", merged.Roles.String()))
	return &merged, nil
}

// AddRole merges role into an existing user's roles. It does nothing for
// unknown users or when the role is already present.
func (r *Repository) AddRole(ctx context.Context, telegramID int64, role Role) error {
	u, err := r.FindUser(ctx, telegramID)
	if err != nil {
		return err
	}
	if u == nil || u.Roles.Has(role) {
		return nil
	}
	return r.update(ctx, "update_roles", telegramID, store.Row{"roles": u.Roles.With(role).String()})
}

func (r *Repository) update(ctx context.Context, name string, telegramID int64, patch store.Row) error {
	err := retry.Run(ctx, r.exec, name, func(ctx context.Context) error {
		_, err := r.store.Update(ctx, store.TableUsers, store.Filter{"telegram_id": telegramID}, patch)
		return err
	})
	if err != nil {
		return fmt.Errorf("update user %d: %w", telegramID, err)
	}
	return nil
}

// CreateListing stores a job owned by ownerID. City and contact are copied
// from the owner's record.
func (r *Repository) CreateListing(ctx context.Context, ownerID int64, title, description string, price int64) (*Job, error) {
	if price < 0 {
		return nil, fmt.Errorf("negative price %d", price)
	}

	owner, err := r.FindUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	job := Job{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Price:       price,
		City:        Placeholder,
		Contact:     Placeholder,
		CreatedAt:   r.now().UTC(),
	}
	if owner != nil {
		job.City = owner.City
		job.Contact = owner.Phone
	}

	err = retry.Run(ctx, r.exec, "insert_job", func(ctx context.Context) error {
		return r.store.Insert(ctx, store.TableJobs, jobRow(job))
	})
	if err != nil {
		return nil, fmt.Errorf("insert job for %d: %w", ownerID, err)
	}
	r.logger.Info("Job listing created", zap.Int64("owner_id", ownerID), zap.String("city", job.City))
	return &job, nil
}

// ListByCity returns the newest listings in city, or in every city when city is empty.
func (r *Repository) ListByCity(ctx context.Context, city string, limit int) ([]Job, error) {
	filter := store.Filter{}
	if city != "" {
		filter["city"] = city
	}
	return r.listJobs(ctx, "list_jobs_city", filter, limit)
}

// ListByOwner returns the newest listings posted by ownerID.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]Job, error) {
	return r.listJobs(ctx, "list_jobs_owner", store.Filter{"owner_id": ownerID}, limit)
}

func (r *Repository) listJobs(ctx context.Context, name string, filter store.Filter, limit int) ([]Job, error) {
	rows, err := retry.Do(ctx, r.exec, name, func(ctx context.Context) ([]store.Row, error) {
		return r.store.Select(ctx, store.TableJobs, filter, store.OrderBy("created_at", true), store.Limit(limit))
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, jobFromRow(row))
	}
	return jobs, nil
}

func userRow(u User) store.Row {
	return store.Row{
		"telegram_id": u.TelegramID,
		"username":    u.UserName,
		"name":        u.Name,
		"city":        u.City,
		"phone":       u.Phone,
		"roles":       u.Roles.String(),
		"created_at":  u.CreatedAt,
	}
}

func userFromRow(row store.Row) User {
	return User{
		TelegramID: asInt64(row["telegram_id"]),
		UserName:   asString(row["username"]),
		Name:       asString(row["name"]),
		City:       asString(row["city"]),
		Phone:      asString(row["phone"]),
		Roles:      ParseRoles(asString(row["roles"])),
		CreatedAt:  asTime(row["created_at"]),
	}
}

func jobRow(j Job) store.Row {
	return store.Row{
		"owner_id":    j.OwnerID,
		"title":       j.Title,
		"description": j.Description,
		"price":       j.Price,
		"city":        j.City,
		"contact":     j.Contact,
		"created_at":  j.CreatedAt,
	}
}

func jobFromRow(row store.Row) Job {
	return Job{
		ID:          asInt64(row["id"]),
		OwnerID:     asInt64(row["owner_id"]),
		Title:       asString(row["title"]),
		Description: asString(row["description"]),
		Price:       asInt64(row["price"]),
		City:        asString(row["city"]),
		Contact:     asString(row["contact"]),
		CreatedAt:   asTime(row["created_at"]),
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, _ := time.Parse(time.RFC3339Nano, x)
		return t
	default:
		return time.Time{}
	}
}
