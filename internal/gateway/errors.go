package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Class buckets Discord API failures so reconcilers can decide between
// repair (stale correlation), warn-and-continue, and abandon-for-now.
type Class int

const (
	// ClassTransient covers timeouts, 5xx and anything unrecognized; the
	// operation is abandoned for this event and retried by redelivery.
	ClassTransient Class = iota
	// ClassNotFound means the external id no longer resolves; the stored
	// correlation is stale and must be repaired by recreate-and-overwrite.
	ClassNotFound
	// ClassPermission means the bot lacks rights for the call.
	ClassPermission
	// ClassRateLimited means Discord rejected the call over budget.
	ClassRateLimited
)

const (
	errCodeUnknownChannel = 10003
	errCodeUnknownGuild   = 10004
	errCodeUnknownMember  = 10007
	errCodeUnknownMessage = 10008
	errCodeUnknownUser    = 10013
	errCodeUnknownRole    = 10011
	errCodeMissingAccess  = 50001
	errCodeMissingPerms   = 50013
	errCodeCannotDM       = 50007
)

// Classify maps an error from a Discord call onto a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case errCodeUnknownChannel, errCodeUnknownGuild, errCodeUnknownMember,
				errCodeUnknownMessage, errCodeUnknownUser, errCodeUnknownRole:
				return ClassNotFound
			case errCodeMissingAccess, errCodeMissingPerms, errCodeCannotDM:
				return ClassPermission
			}
		}
		if rest.Response != nil {
			switch rest.Response.StatusCode {
			case http.StatusNotFound:
				return ClassNotFound
			case http.StatusForbidden:
				return ClassPermission
			case http.StatusTooManyRequests:
				return ClassRateLimited
			}
		}
		return ClassTransient
	}
	var rate *discordgo.RateLimitError
	if errors.As(err, &rate) {
		return ClassRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassTransient
}

// IsNotFound reports whether the error means the target no longer exists.
func IsNotFound(err error) bool {
	return err != nil && Classify(err) == ClassNotFound
}

// IsPermission reports whether the error is a bot permission failure.
func IsPermission(err error) bool {
	return err != nil && Classify(err) == ClassPermission
}
