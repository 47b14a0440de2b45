package ingest

import (
	"fmt"
	"strings"
)

// MissingFieldError lists required payload fields that were absent.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// InvalidFieldError lists fields whose values could not be coerced.
type InvalidFieldError struct {
	Fields []string
}

func (e *InvalidFieldError) Error() string {
	return "Invalid data types for fields: " + strings.Join(e.Fields, ", ")
}

// StoreWriteError wraps a failed insert. Error returns the store's message
// unchanged so callers can pass it through.
type StoreWriteError struct {
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return e.Err.Error()
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// UnsupportedMethodError is returned for any request that is not a POST.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return "Method not allowed"
}

// PayloadError is a body that could not be decoded into a field mapping.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid JSON payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
