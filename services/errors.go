package services

import (
	"errors"
	"fmt"

	"github.com/sahilchouksey/learnhub-api/services/razorpay"
)

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrCourseUnavailable  = errors.New("course is not available for enrollment")
	ErrInvalidCoursePrice = errors.New("course price is invalid")
	ErrCourseIsFree       = errors.New("course is free, use the enrollment endpoint")
	ErrCourseNotFree      = errors.New("course is not free")
	ErrNotCourseOwner     = errors.New("only the course owner can modify this course")

	ErrAlreadyEnrolled  = errors.New("already enrolled in this course")
	ErrNotEnrolled      = errors.New("not enrolled in this course")
	ErrOrderInProgress  = errors.New("an order for this course is already being created")
	ErrInvalidSignature = errors.New("payment signature verification failed")

	ErrPaymentNotFound         = errors.New("payment not found")
	ErrNotPaymentOwner         = errors.New("payment belongs to another user")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed with a different payment id")
	ErrPaymentExpired          = errors.New("payment order has expired, create a new order")

	ErrNotificationNotFound = errors.New("notification not found")
)

// GatewayError is returned when the payment gateway rejects or fails a call. Detail carries
// the gateway's own description for the client.
type GatewayError struct {
	Op     string
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func newGatewayError(op string, err error) *GatewayError {
	detail := err.Error()
	var apiErr *razorpay.APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.Description
	}
	return &GatewayError{Op: op, Detail: detail, Err: err}
}
