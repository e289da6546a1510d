package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassTransient},
		{name: "unknown channel", err: restError(http.StatusNotFound, errCodeUnknownChannel), want: ClassNotFound},
		{name: "unknown message", err: restError(http.StatusNotFound, errCodeUnknownMessage), want: ClassNotFound},
		{name: "unknown member", err: restError(http.StatusNotFound, errCodeUnknownMember), want: ClassNotFound},
		{name: "missing access", err: restError(http.StatusForbidden, errCodeMissingAccess), want: ClassPermission},
		{name: "cannot dm", err: restError(http.StatusForbidden, errCodeCannotDM), want: ClassPermission},
		{name: "status 404 without code", err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}, want: ClassNotFound},
		{name: "status 403 without code", err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}, want: ClassPermission},
		{name: "status 429", err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}, want: ClassRateLimited},
		{name: "rate limit error", err: &discordgo.RateLimitError{}, want: ClassRateLimited},
		{name: "server error", err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusInternalServerError}}, want: ClassTransient},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassTransient},
		{name: "plain error", err: fmt.Errorf("connection reset"), want: ClassTransient},
		{name: "wrapped not found", err: fmt.Errorf("verify channel: %w", restError(http.StatusNotFound, errCodeUnknownChannel)), want: ClassNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	if IsNotFound(nil) {
		t.Fatal("nil error must not be not-found")
	}
	if !IsNotFound(restError(http.StatusNotFound, errCodeUnknownChannel)) {
		t.Fatal("unknown channel must be not-found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain error must not be not-found")
	}
}

func TestIsPermission(t *testing.T) {
	t.Parallel()

	if IsPermission(nil) {
		t.Fatal("nil error must not be a permission failure")
	}
	if !IsPermission(restError(http.StatusForbidden, errCodeMissingPerms)) {
		t.Fatal("missing permissions must classify as permission")
	}
}
