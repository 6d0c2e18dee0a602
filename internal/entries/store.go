package entries

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"swish-forms/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrSaveFailed = errors.New("failed to save submission")
	ErrNotFound   = errors.New("entry not found")
)

// NewEntry is the data needed to persist a submission.
type NewEntry struct {
	FormID   string
	FormType string
	Fields   map[string]any
	Email    string
	IP       string
}

// ListArgs paginates List. Zero values mean page 1, 20 per page, newest
// first.
type ListArgs struct {
	Page    int
	PerPage int
	Order   string // "asc" or "desc"
}

// Store persists form entries.
type Store struct {
	db   *gorm.DB
	salt string
	now  func() time.Time
}

func NewStore(db *gorm.DB, salt string) *Store {
	return &Store{db: db, salt: salt, now: time.Now}
}

// HashIP returns the salted SHA-256 of ip.
func (s *Store) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip + s.salt))
	return hex.EncodeToString(sum[:])
}

// Create stores a submission and returns its id.
func (s *Store) Create(ctx context.Context, in NewEntry) (uint, error) {
	title := in.Email
	if title == "" {
		title = "Submission - " + s.now().Format("2006-01-02 15:04:05")
	}

	entry := models.Entry{
		Title:     title,
		FormID:    in.FormID,
		FormType:  in.FormType,
		Fields:    datatypes.JSONMap(in.Fields),
		Email:     in.Email,
		IPHash:    s.HashIP(in.IP),
		ESPSynced: false,
	}
	if entry.Fields == nil {
		entry.Fields = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return entry.ID, nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, id uint) (models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry, ErrNotFound
	}
	return entry, err
}

// List returns one page of entries, optionally limited to formID.
func (s *Store) List(ctx context.Context, formID string, args ListArgs) ([]models.Entry, error) {
	page := args.Page
	if page < 1 {
		page = 1
	}
	perPage := args.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	order := "created_at DESC, id DESC"
	if args.Order == "asc" {
		order = "created_at ASC, id ASC"
	}

	entries := []models.Entry{}
	err := s.scoped(ctx, formID).
		Order(order).
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&entries).Error
	return entries, err
}

// Count returns the number of entries, optionally limited to formID.
func (s *Store) Count(ctx context.Context, formID string) (int64, error) {
	var n int64
	err := s.scoped(ctx, formID).Model(&models.Entry{}).Count(&n).Error
	return n, err
}

// MarkAsSynced flags the entry as delivered to its ESP. Marking an already
// synced entry is a no-op.
func (s *Store) MarkAsSynced(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ?", id).
		Update("esp_synced", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Entry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scoped(ctx context.Context, formID string) *gorm.DB {
	q := s.db.WithContext(ctx)
	if formID != "" {
		q = q.Where("form_id = ?", formID)
	}
	return q
}
