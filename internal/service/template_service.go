// internal/service/template_service.go
package service

import (
	"fmt"
	"strings"

	"github.com/nexlead/nexlead-backend/internal/model"
)

// ResolveParams builds the positional parameter list for a send from
// recipient fields, in the exact order the template declares. The provider
// substitutes parameters by position, so the order must never be disturbed.
func ResolveParams(tpl *model.Template, rec *model.Recipient) []string {
	params := make([]string, 0, len(tpl.ParamFields))
	for _, field := range tpl.ParamFields {
		params = append(params, recipientField(rec, field))
	}
	return params
}

func recipientField(rec *model.Recipient, field string) string {
	var value string
	switch field {
	case "first_name":
		value = rec.FirstName
	case "last_name":
		value = rec.LastName
	case "location":
		value = rec.Location
	case "preferred_product":
		value = rec.PreferredProduct
	case "phone":
		value = rec.Phone
	}
	if value == "" {
		value = "N/A"
	}
	return value
}

// RenderTemplate substitutes positional placeholders ({{1}}, {{2}}, ...)
// with the resolved parameters, for previews and the ledger payload.
func RenderTemplate(body string, params []string) string {
	result := body
	for i, p := range params {
		placeholder := fmt.Sprintf("{{%d}}", i+1)
		result = strings.ReplaceAll(result, placeholder, p)
	}
	return result
}
