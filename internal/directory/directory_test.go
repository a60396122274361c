package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/repository"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type fakeCourses struct {
	enrolled map[string][]string // userID -> course codes
	teaching map[string][]string // lecturer name -> course codes
}

func (f fakeCourses) EnrolledCourses(ctx context.Context, userID string) ([]string, error) {
	return f.enrolled[userID], nil
}

func (f fakeCourses) TeachingCourses(ctx context.Context, lecturerName string) ([]string, error) {
	return f.teaching[lecturerName], nil
}

func testDirectory() *Directory {
	users := fakeUsers{
		"s1": {ID: "s1", FullName: "Ama Boateng", Email: "ama@knust.edu.gh", Role: model.RoleStudent, AcademicLevel: "100"},
		"s2": {ID: "s2", FullName: "Kofi Mensah", Email: "kofi@knust.edu.gh", Role: model.RoleStudent, AcademicLevel: "200"},
		"l1": {ID: "l1", FullName: "Dr. Mensah", Email: "mensah@knust.edu.gh", Role: model.RoleLecturer},
	}
	courses := fakeCourses{
		enrolled: map[string][]string{
			"s1": {"CSM101", "MATH161"},
		},
		teaching: map[string][]string{
			"Dr. Mensah": {"CSM101", "CSM157"},
		},
	}
	return New(users, courses)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory()

	t.Run("student gets GENERAL plus enrolments", func(t *testing.T) {
		m, err := dir.Resolve(ctx, "s1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		want := []string{model.ChannelGeneral, "CSM101", "MATH161"}
		if len(m.Channels) != len(want) {
			t.Fatalf("channels = %v, want %v", m.Channels, want)
		}
		for _, ch := range want {
			if !m.CanAccess(ch) {
				t.Fatalf("CanAccess(%s) = false", ch)
			}
		}
		if m.CanAccess(model.ChannelFaculty) {
			t.Fatal("student can access FACULTY")
		}
		if m.CanAccess("CSM251") {
			t.Fatal("student can access a course they never enrolled in")
		}
		if m.Role != model.RoleStudent || m.AcademicLevel != "100" {
			t.Fatalf("membership = %+v", m)
		}
	})

	t.Run("student with no enrolments still gets GENERAL", func(t *testing.T) {
		m, err := dir.Resolve(ctx, "s2")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(m.Channels) != 1 || !m.CanAccess(model.ChannelGeneral) {
			t.Fatalf("channels = %v", m.Channels)
		}
	})

	t.Run("lecturer gets FACULTY plus taught courses", func(t *testing.T) {
		m, err := dir.Resolve(ctx, "l1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		for _, ch := range []string{model.ChannelGeneral, model.ChannelFaculty, "CSM101", "CSM157"} {
			if !m.CanAccess(ch) {
				t.Fatalf("CanAccess(%s) = false, channels = %v", ch, m.Channels)
			}
		}
		if m.CanAccess("MATH161") {
			t.Fatal("lecturer can access a course they do not teach")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := dir.Resolve(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory()

	p, err := dir.Profile(ctx, "s1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.ID != "s1" || p.FullName != "Ama Boateng" || p.Role != model.RoleStudent {
		t.Fatalf("profile = %+v", p)
	}

	if _, err := dir.Profile(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
