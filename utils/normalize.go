package utils

import (
	"reflect"
	"strings"
)

// NormalizePtrDTO trims *string fields on a pointer-to-struct DTO.
// Only non-nil pointer fields are touched; nils stay nil so GORM won't update them.
func NormalizePtrDTO(dto any) {
	s, ok := structOf(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		if ef := f.Elem(); ef.Kind() == reflect.String && ef.CanSet() {
			ef.SetString(strings.TrimSpace(ef.String()))
		}
	}
}

// NormalizeDTO trims string fields on a pointer-to-struct DTO.
// Useful for create DTOs that use non-pointer fields.
func NormalizeDTO(dto any) {
	s, ok := structOf(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		if f := s.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

func structOf(dto any) (reflect.Value, bool) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, false
	}
	s := v.Elem()
	return s, s.Kind() == reflect.Struct
}
