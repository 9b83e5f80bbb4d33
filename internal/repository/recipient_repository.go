package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nexlead/nexlead-backend/internal/model"
)

// RecipientRepositoryInterface defines methods used by the dispatch loop and
// the webhook reconciler.
type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	GetByPhone(phone string) (*model.Recipient, error)
	// ListEligible resolves a target spec into concrete recipients,
	// excluding anyone opted out or flagged do-not-contact.
	ListEligible(spec model.TargetSpec) ([]model.Recipient, error)
	SetOptedOut(id int, at time.Time) error
	SetDoNotContact(id int) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, phone, first_name, last_name, location, preferred_product,
	opted_out, opted_out_at, do_not_contact, created_at`

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(&rec.ID, &rec.Phone, &rec.FirstName, &rec.LastName, &rec.Location,
		&rec.PreferredProduct, &rec.OptedOut, &rec.OptedOutAt, &rec.DoNotContact, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID fetches a recipient by ID
func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return rec, nil
}

// GetByPhone fetches a recipient by channel address. The reconciler uses it
// to attribute inbound messages.
func (r *RecipientRepository) GetByPhone(phone string) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE phone = $1`
	rec, err := scanRecipient(r.DB.QueryRow(query, phone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) ListEligible(spec model.TargetSpec) ([]model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients
        WHERE opted_out = FALSE AND do_not_contact = FALSE`
	args := []interface{}{}
	argPos := 1

	switch spec.Kind {
	case model.TargetAll:
		// no extra predicate
	case model.TargetIDs:
		query += fmt.Sprintf(" AND id = ANY($%d)", argPos)
		args = append(args, pq.Array(spec.RecipientIDs))
		argPos++
	case model.TargetFilter:
		if spec.Location != "" {
			query += fmt.Sprintf(" AND location = $%d", argPos)
			args = append(args, spec.Location)
			argPos++
		}
		if spec.PreferredProduct != "" {
			query += fmt.Sprintf(" AND preferred_product = $%d", argPos)
			args = append(args, spec.PreferredProduct)
			argPos++
		}
	default:
		return nil, fmt.Errorf("unknown target spec kind %q", spec.Kind)
	}

	query += " ORDER BY id"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) SetOptedOut(id int, at time.Time) error {
	query := `UPDATE recipients SET opted_out=TRUE, opted_out_at=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, at, id)
	return err
}

func (r *RecipientRepository) SetDoNotContact(id int) error {
	query := `UPDATE recipients SET do_not_contact=TRUE WHERE id=$1`
	_, err := r.DB.Exec(query, id)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
