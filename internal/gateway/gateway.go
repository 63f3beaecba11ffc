// Package gateway is the form's boundary to the report API.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"shift_report/internal/report"
)

// ReportGateway is everything the form needs from the backend to create,
// list and delete reports.
type ReportGateway interface {
	Create(ctx context.Context, s report.Submission) (int64, error)
	ListOwn(ctx context.Context) ([]report.Report, error)
	ListAll(ctx context.Context) ([]report.Report, error)
	Delete(ctx context.Context, id int64) error
}

// ConnectivityError means the backend could not be reached at all.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: cannot reach server: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ServerError is a response the backend rejected. Message is the server's
// own text when it sent one.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// StatusOf returns the HTTP status of a ServerError, or 0.
func StatusOf(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
