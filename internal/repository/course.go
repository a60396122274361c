package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
)

const courseCols = `code, title, credits, semester, COALESCE(level,''), COALESCE(lecturer,'')`

type CourseRepository struct {
	pool *pgxpool.Pool
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

func scanCourse(s interface{ Scan(dest ...any) error }, c *model.Course) error {
	return s.Scan(&c.Code, &c.Title, &c.Credits, &c.Semester, &c.Level, &c.Lecturer)
}

func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	defer logger.DeferLogDuration("course.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO courses (code, title, credits, semester, level, lecturer)
		 VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''))
		 ON CONFLICT (code) DO UPDATE SET
		   title = EXCLUDED.title, credits = EXCLUDED.credits,
		   semester = EXCLUDED.semester, level = EXCLUDED.level, lecturer = EXCLUDED.lecturer`,
		c.Code, c.Title, c.Credits, c.Semester, c.Level, c.Lecturer,
	)
	if err != nil {
		return fmt.Errorf("courseRepo.Create: %w", err)
	}
	return nil
}

func (r *CourseRepository) GetByCode(ctx context.Context, code string) (*model.Course, error) {
	defer logger.DeferLogDuration("course.GetByCode", time.Now())()
	c := &model.Course{}
	row := r.pool.QueryRow(ctx, `SELECT `+courseCols+` FROM courses WHERE code = $1`, code)
	if err := scanCourse(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("courseRepo.GetByCode: %w", err)
	}
	return c, nil
}

func (r *CourseRepository) List(ctx context.Context) ([]model.Course, error) {
	defer logger.DeferLogDuration("course.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+courseCols+` FROM courses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("courseRepo.List: %w", err)
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := scanCourse(rows, &c); err != nil {
			return nil, fmt.Errorf("courseRepo.List scan: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courseRepo.List rows: %w", err)
	}
	return courses, nil
}

// Enrol registers the user on the course. Enrolling twice is a no-op.
func (r *CourseRepository) Enrol(ctx context.Context, courseCode, userID string) error {
	defer logger.DeferLogDuration("course.Enrol", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO course_enrolments (course_code, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		courseCode, userID,
	)
	if err != nil {
		return fmt.Errorf("courseRepo.Enrol: %w", err)
	}
	return nil
}

func (r *CourseRepository) Unenrol(ctx context.Context, courseCode, userID string) error {
	defer logger.DeferLogDuration("course.Unenrol", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM course_enrolments WHERE course_code = $1 AND user_id = $2`,
		courseCode, userID,
	)
	if err != nil {
		return fmt.Errorf("courseRepo.Unenrol: %w", err)
	}
	return nil
}

// EnrolledCourses lists the course codes the user is registered on, in code
// order. Channel membership for students derives from this list.
func (r *CourseRepository) EnrolledCourses(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("course.EnrolledCourses", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT course_code FROM course_enrolments WHERE user_id = $1 ORDER BY course_code`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("courseRepo.EnrolledCourses: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("courseRepo.EnrolledCourses scan: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courseRepo.EnrolledCourses rows: %w", err)
	}
	return codes, nil
}

// TeachingCourses lists the course codes where the named lecturer teaches.
func (r *CourseRepository) TeachingCourses(ctx context.Context, lecturerName string) ([]string, error) {
	defer logger.DeferLogDuration("course.TeachingCourses", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT code FROM courses WHERE lecturer = $1 ORDER BY code`, lecturerName,
	)
	if err != nil {
		return nil, fmt.Errorf("courseRepo.TeachingCourses: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("courseRepo.TeachingCourses scan: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courseRepo.TeachingCourses rows: %w", err)
	}
	return codes, nil
}

// EnrolledUserIDs lists the ids of everyone on the course, for push fan-out.
func (r *CourseRepository) EnrolledUserIDs(ctx context.Context, courseCode string) ([]string, error) {
	defer logger.DeferLogDuration("course.EnrolledUserIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM course_enrolments WHERE course_code = $1`, courseCode,
	)
	if err != nil {
		return nil, fmt.Errorf("courseRepo.EnrolledUserIDs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("courseRepo.EnrolledUserIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courseRepo.EnrolledUserIDs rows: %w", err)
	}
	return ids, nil
}
