package directory

import (
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("directory entity not found")

// ActorKind tags a requester identity so authorization checks can branch
// exhaustively instead of guessing what kind of id they were handed.
type ActorKind string

const (
	ActorOwner        ActorKind = "owner"
	ActorPractitioner ActorKind = "practitioner"
	ActorStaff        ActorKind = "staff"
)

type Actor struct {
	ID   uuid.UUID
	Kind ActorKind
}

// Pet is the read projection the booking core needs: the pet itself plus
// enough owner contact detail to address notifications.
type Pet struct {
	ID         uuid.UUID
	Name       string
	OwnerID    uuid.UUID
	OwnerName  string
	OwnerEmail string
	OwnerPhone string
}

type Practitioner struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Active bool
}

type Clinic struct {
	ID         uuid.UUID
	Name       string
	OwnerEmail string // empty when the clinic has no owner account
	MemberIDs  []uuid.UUID
}

// HasMember reports whether the practitioner belongs to this clinic.
func (c *Clinic) HasMember(practitionerID uuid.UUID) bool {
	for _, id := range c.MemberIDs {
		if id == practitionerID {
			return true
		}
	}
	return false
}
