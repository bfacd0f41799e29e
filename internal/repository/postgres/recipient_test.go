package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fastandpray/promo-dispatch/internal/domain"
)

func recipientRows(pairs ...[3]interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "email", "is_active"})
	for _, p := range pairs {
		rows.AddRow(p[0], p[1], p[2])
	}
	return rows
}

func TestRecipientRepo_OverrideEmails(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)

	mock.ExpectQuery("SELECT id, email, is_active FROM users").
		WillReturnRows(recipientRows(
			[3]interface{}{"u1", "a@example.com", true},
			[3]interface{}{"u2", "b@example.com", false},
		))

	c := &domain.Campaign{
		ID:             "promo-1",
		OverrideEmails: []string{"a@example.com", "b@example.com"},
	}
	got, err := repo.Resolve(context.Background(), c)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Resolve() returned %d recipients, want 2", len(got))
	}
	if got[0].Email != "a@example.com" || got[1].Email != "b@example.com" {
		t.Errorf("Resolve() order = %s, %s", got[0].Email, got[1].Email)
	}
	if got[1].Active {
		t.Error("inactive flag not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecipientRepo_TargetedFilters(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	church := "church-9"

	mock.ExpectQuery("SELECT DISTINCT u.id, u.email, u.is_active").
		WithArgs(church).
		WillReturnRows(recipientRows(
			[3]interface{}{"u1", "a@example.com", true},
		))

	c := &domain.Campaign{
		ID:                  "promo-1",
		ChurchID:            &church,
		ExcludeUnsubscribed: true,
	}
	got, err := repo.Resolve(context.Background(), c)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u1" {
		t.Errorf("Resolve() = %+v, want single u1", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecipientRepo_AllUsersIgnoresFilters(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	church := "church-9"

	// all_users campaigns query without targeting arguments.
	mock.ExpectQuery("SELECT DISTINCT u.id, u.email, u.is_active").
		WithArgs().
		WillReturnRows(recipientRows(
			[3]interface{}{"u1", "a@example.com", true},
			[3]interface{}{"u2", "b@example.com", true},
		))

	c := &domain.Campaign{ID: "promo-1", AllUsers: true, ChurchID: &church}
	got, err := repo.Resolve(context.Background(), c)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Resolve() returned %d recipients, want 2", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecipientRepo_EmptyResult(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)

	mock.ExpectQuery("SELECT DISTINCT u.id, u.email, u.is_active").
		WillReturnRows(recipientRows())

	got, err := repo.Resolve(context.Background(), &domain.Campaign{ID: "promo-1", AllUsers: true})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve() returned %d recipients, want 0", len(got))
	}
}
