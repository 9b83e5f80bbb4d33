// internal/model/template.go
package model

import "time"

// Template is a provider-registered message template. Body uses positional
// placeholders ({{1}}, {{2}}, ...) and ParamFields names the recipient
// fields substituted into each position, in order. The order must match the
// template registered with the provider exactly.
type Template struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Body        string    `db:"body" json:"body"`
	ParamFields []string  `db:"param_fields" json:"param_fields"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
