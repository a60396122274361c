// Package directory resolves who a user is and which channels they belong to.
// Students see GENERAL plus their enrolled course channels; lecturers see
// GENERAL, FACULTY and the channels of the courses they teach.
package directory

import (
	"context"
	"fmt"

	"github.com/campushub/internal/model"
)

type UserSource interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type CourseSource interface {
	EnrolledCourses(ctx context.Context, userID string) ([]string, error)
	TeachingCourses(ctx context.Context, lecturerName string) ([]string, error)
}

// Membership is a user's resolved channel set, computed once per connection
// and consulted on every join and send.
type Membership struct {
	UserID        string
	Role          model.Role
	AcademicLevel string
	Channels      []string

	channelSet map[string]struct{}
}

// CanAccess reports whether the channel is in the membership set.
func (m *Membership) CanAccess(channel string) bool {
	_, ok := m.channelSet[channel]
	return ok
}

type Directory struct {
	users   UserSource
	courses CourseSource
}

func New(users UserSource, courses CourseSource) *Directory {
	return &Directory{users: users, courses: courses}
}

// Profile loads the user's public profile.
func (d *Directory) Profile(ctx context.Context, userID string) (model.UserPublic, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return model.UserPublic{}, fmt.Errorf("directory.Profile: %w", err)
	}
	return u.ToPublic(), nil
}

// Resolve computes the user's channel membership from their role and course
// registrations. The set is a point-in-time snapshot; a new enrolment shows
// up on the next connection.
func (d *Directory) Resolve(ctx context.Context, userID string) (*Membership, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("directory.Resolve user: %w", err)
	}

	channels := []string{model.ChannelGeneral}
	switch u.Role {
	case model.RoleLecturer:
		channels = append(channels, model.ChannelFaculty)
		codes, err := d.courses.TeachingCourses(ctx, u.FullName)
		if err != nil {
			return nil, fmt.Errorf("directory.Resolve teaching: %w", err)
		}
		channels = append(channels, codes...)
	default:
		codes, err := d.courses.EnrolledCourses(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("directory.Resolve enrolments: %w", err)
		}
		channels = append(channels, codes...)
	}

	m := &Membership{
		UserID:        u.ID,
		Role:          u.Role,
		AcademicLevel: u.AcademicLevel,
		Channels:      channels,
		channelSet:    make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		m.channelSet[ch] = struct{}{}
	}
	return m, nil
}
