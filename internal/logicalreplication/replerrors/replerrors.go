/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package replerrors defines the typed, EXPECTABLE error kinds of the
// logical replication control plane. These represent conditions the
// control plane itself classifies and reacts to (by recording a relation
// failure reason, or rejecting a DDL call) as opposed to unexpected
// failures such as panics or lost connections.
package replerrors

import "fmt"

// Kind enumerates the error kinds of section 7.
type Kind string

const (
	// KindInvalidConnectionString is a malformed URL or unknown option.
	KindInvalidConnectionString Kind = "InvalidConnectionString"
	// KindRelationAlreadyExists is a pre-flight collision with a local relation.
	KindRelationAlreadyExists Kind = "RelationAlreadyExists"
	// KindRemoteConnectFailed is a transient network/auth failure connecting to the publisher.
	KindRemoteConnectFailed Kind = "RemoteConnectFailed"
	// KindPublicationStateFailed is a connected-but-failed PublicationsStateAction RPC.
	KindPublicationStateFailed Kind = "PublicationStateFailed"
	// KindRestoreRejected is a restore submission refused by the restore executor.
	KindRestoreRejected Kind = "RestoreRejected"
	// KindRestorePartial is a restore that completed with some, but not all, shards failed.
	KindRestorePartial Kind = "RestorePartial"
	// KindRestoreTotal is a restore that completed with every shard failed.
	KindRestoreTotal Kind = "RestoreTotal"
	// KindRestoreMasterLost is a restore whose completion carried no RestoreInfo.
	KindRestoreMasterLost Kind = "RestoreMasterLost"
	// KindSubscriptionMissing is a state update targeting an already-dropped subscription.
	KindSubscriptionMissing Kind = "SubscriptionMissing"
)

// Error is a typed, EXPECTABLE control-plane error. It is not meant to
// represent unexpected errors such as a panic or a connection interruption.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, so errors.Is/As keep working.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, carrying cause as the Unwrap target.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
