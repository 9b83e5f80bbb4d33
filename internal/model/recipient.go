// internal/model/recipient.go
package model

import "time"

type Recipient struct {
	ID               int        `db:"id" json:"id"`
	Phone            string     `db:"phone" json:"phone"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Location         string     `db:"location" json:"location"`
	PreferredProduct string     `db:"preferred_product" json:"preferred_product"`
	OptedOut         bool       `db:"opted_out" json:"opted_out"`
	OptedOutAt       *time.Time `db:"opted_out_at" json:"opted_out_at,omitempty"`
	DoNotContact     bool       `db:"do_not_contact" json:"do_not_contact"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Contactable reports whether the dispatch loop may send to this recipient.
func (r *Recipient) Contactable() bool {
	return !r.OptedOut && !r.DoNotContact
}
