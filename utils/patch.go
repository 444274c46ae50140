package utils

import (
	"reflect"
	"strings"

	"gorm.io/gorm/schema"
)

var columnNames = schema.NamingStrategy{}

// PatchColumns turns a partial-update DTO into a gorm Updates map. Only
// non-nil pointer fields are included. Keys are the column names gorm
// derives from the Go field names, so a patch DTO mirrors the model it
// updates (ClientUpdateDTO.CompanyName -> clients.company_name). A
// `patch:"column"` tag overrides the column, `patch:"-"` skips the field.
func PatchColumns(dto any) map[string]any {
	res := make(map[string]any)
	s, ok := structOf(dto)
	if !ok {
		return res
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if !sf.IsExported() || fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		column := columnNames.ColumnName("", sf.Name)
		if tag := strings.TrimSpace(sf.Tag.Get("patch")); tag == "-" {
			continue
		} else if tag != "" {
			column = tag
		}
		res[column] = fv.Elem().Interface()
	}
	return res
}
