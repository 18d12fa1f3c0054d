// Package domain contains the core concepts of the messaging engine.
// This file defines the Group aggregate and its membership invariants.
// No storage, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group is a named conversation owned by its admin.
// Invariants: the admin is always a member, members hold no duplicates,
// and a group never has fewer than one member until it is deleted.
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Admin       string    `json:"admin"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewGroup creates a group whose creator is admin and sole member.
func NewGroup(name, description, creator string, now time.Time) Group {
	return Group{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Admin:       creator,
		Members:     []string{creator},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasMember reports whether username belongs to the member set.
func (g Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

// AddMember appends a member. The caller is responsible for the
// duplicate check; this keeps the entity free of error plumbing.
func (g *Group) AddMember(username string, now time.Time) {
	g.Members = append(g.Members, username)
	g.UpdatedAt = now
}

// RemoveMember drops a member, preserving the order of the rest.
func (g *Group) RemoveMember(username string, now time.Time) {
	kept := g.Members[:0]
	for _, m := range g.Members {
		if m != username {
			kept = append(kept, m)
		}
	}
	g.Members = kept
	g.UpdatedAt = now
}

// Touch bumps the activity timestamp, used when a message is appended.
func (g *Group) Touch(now time.Time) {
	g.UpdatedAt = now
}
