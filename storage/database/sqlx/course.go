package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
)

const (
	courseColumns = `id, author, title, start_date, price, is_available, created_at, updated_at`
	lessonColumns = `id, course_id, title, link, created_at, updated_at`
)

type courseRow struct {
	ID          string     `db:"id"`
	Author      string     `db:"author"`
	Title       string     `db:"title"`
	StartDate   time.Time  `db:"start_date"`
	Price       core.Money `db:"price"`
	IsAvailable bool       `db:"is_available"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:          r.ID,
		Author:      r.Author,
		Title:       r.Title,
		StartDate:   r.StartDate.UTC(),
		Price:       r.Price,
		IsAvailable: r.IsAvailable,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Title     string    `db:"title"`
	Link      string    `db:"link"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r lessonRow) toLesson() course.Lesson {
	return course.Lesson{
		ID:        r.ID,
		CourseID:  r.CourseID,
		Title:     r.Title,
		Link:      r.Link,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type groupRow struct {
	ID            string    `db:"id"`
	CourseID      string    `db:"course_id"`
	Title         string    `db:"title"`
	StudentsCount int       `db:"students_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r groupRow) toGroup() course.Group {
	return course.Group{
		ID:            r.ID,
		CourseID:      r.CourseID,
		Title:         r.Title,
		StudentsCount: r.StudentsCount,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

const groupSelect = `SELECT g.id, g.course_id, g.title, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM group_student gs WHERE gs.group_id = g.id) AS students_count
	FROM "group" g`

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func isUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// Courses

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	q := `INSERT INTO course (` + courseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		c.ID, c.Author, c.Title, c.StartDate.UTC(), c.Price, c.IsAvailable, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	exe := getExec(repo.db, exec)

	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, `(title ILIKE ? OR author ILIKE ?)`)
			args = append(args, val, val)
		}
		if filter.Available != nil {
			where = append(where, `is_available = ?`)
			args = append(args, *filter.Available)
		}
	}

	q := `SELECT ` + courseColumns + ` FROM course`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, "created_at DESC")

	var rows []courseRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	q := `SELECT ` + courseColumns + ` FROM course WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return row.toCourse(), nil
}

// LockCourse holds the course row until the end of the transaction exec belongs to.
func (repo *courseRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	q := `SELECT ` + courseColumns + ` FROM course WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "locking course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	q := `UPDATE course SET author = $2, title = $3, start_date = $4, price = $5, is_available = $6, updated_at = $7 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		c.ID, c.Author, c.Title, c.StartDate.UTC(), c.Price, c.IsAvailable, c.UpdatedAt.UTC())
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if err = checkAffected(res, course.ErrNotFound, "updating course"); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return checkAffected(res, course.ErrNotFound, "deleting course")
}

// Lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	l.ID = uuid.New().String()
	q := `INSERT INTO lesson (` + lessonColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		l.ID, l.CourseID, l.Title, l.Link, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo *courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	if !isUUID(courseID) {
		return []course.Lesson{}, nil
	}
	var rows []lessonRow
	q := `SELECT ` + lessonColumns + ` FROM lesson WHERE course_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.toLesson())
	}
	return lessons, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if !isUUID(courseID, id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	q := `SELECT ` + lessonColumns + ` FROM lesson WHERE course_id = $1 AND id = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, courseID, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return row.toLesson(), nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	q := `UPDATE lesson SET title = $3, link = $4, updated_at = $5 WHERE course_id = $1 AND id = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, l.CourseID, l.ID, l.Title, l.Link, l.UpdatedAt.UTC())
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if err = checkAffected(res, course.ErrLessonNotFound, "updating lesson"); err != nil {
		return course.Lesson{}, err
	}
	return l, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, courseID, id string, exec ...core.DBExecutor) error {
	if !isUUID(courseID, id) {
		return course.ErrLessonNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM lesson WHERE course_id = $1 AND id = $2`, courseID, id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return checkAffected(res, course.ErrLessonNotFound, "deleting lesson")
}

// Groups

func (repo *courseRepository) CreateGroup(ctx context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	g.ID = uuid.New().String()
	q := `INSERT INTO "group" (id, course_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q, g.ID, g.CourseID, g.Title, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if err != nil {
		return course.Group{}, errors.Wrap(err, "inserting group")
	}
	g.StudentsCount = 0
	return g, nil
}

func (repo *courseRepository) QueryGroups(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Group, error) {
	if !isUUID(courseID) {
		return []course.Group{}, nil
	}
	var rows []groupRow
	q := groupSelect + ` WHERE g.course_id = $1 ORDER BY g.created_at, g.id`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]course.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.toGroup())
	}
	return groups, nil
}

func (repo *courseRepository) GetGroup(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (course.Group, error) {
	if !isUUID(courseID, id) {
		return course.Group{}, course.ErrGroupNotFound
	}
	var row groupRow
	q := groupSelect + ` WHERE g.course_id = $1 AND g.id = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, courseID, id); err != nil {
		return course.Group{}, trapNoRowsErr(err, course.ErrGroupNotFound, "finding group")
	}
	return row.toGroup(), nil
}

func (repo *courseRepository) UpdateGroup(ctx context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	q := `UPDATE "group" SET title = $3, updated_at = $4 WHERE course_id = $1 AND id = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, g.CourseID, g.ID, g.Title, g.UpdatedAt.UTC())
	if err != nil {
		return course.Group{}, errors.Wrap(err, "updating group")
	}
	if err = checkAffected(res, course.ErrGroupNotFound, "updating group"); err != nil {
		return course.Group{}, err
	}
	return g, nil
}

func (repo *courseRepository) DeleteGroup(ctx context.Context, courseID, id string, exec ...core.DBExecutor) error {
	if !isUUID(courseID, id) {
		return course.ErrGroupNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM "group" WHERE course_id = $1 AND id = $2`, courseID, id)
	if err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return checkAffected(res, course.ErrGroupNotFound, "deleting group")
}

func (repo *courseRepository) QueryGroupStudents(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]course.GroupStudent, error) {
	var rows []struct {
		UserID    string    `db:"user_id"`
		FirstName string    `db:"first_name"`
		LastName  string    `db:"last_name"`
		Username  string    `db:"username"`
		Email     string    `db:"email"`
		JoinedAt  time.Time `db:"joined_at"`
	}
	q := `SELECT gs.user_id, u.first_name, u.last_name, u.username, u.email, gs.joined_at
		FROM group_student gs JOIN "user" u ON u.id = gs.user_id
		WHERE gs.group_id = $1 ORDER BY gs.joined_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group students")
	}

	students := make([]course.GroupStudent, 0, len(rows))
	for _, r := range rows {
		students = append(students, course.GroupStudent{
			UserID:   r.UserID,
			Name:     fullName(r.FirstName, r.LastName, r.Username),
			Email:    r.Email,
			JoinedAt: r.JoinedAt.UTC(),
		})
	}
	return students, nil
}

func (repo *courseRepository) FindStudentGroup(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (course.Group, error) {
	var row groupRow
	q := groupSelect + ` JOIN group_student s ON s.group_id = g.id WHERE g.course_id = $1 AND s.user_id = $2 LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, courseID, userID); err != nil {
		return course.Group{}, trapNoRowsErr(err, course.ErrGroupNotFound, "finding student group")
	}
	return row.toGroup(), nil
}

func (repo *courseRepository) AddGroupStudent(ctx context.Context, groupID, userID string, exec ...core.DBExecutor) error {
	q := `INSERT INTO group_student (group_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, q, groupID, userID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "inserting group student")
	}
	return nil
}

func (repo *courseRepository) RemoveCourseStudent(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error {
	q := `DELETE FROM group_student WHERE user_id = $2 AND group_id IN (SELECT id FROM "group" WHERE course_id = $1)`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, q, courseID, userID); err != nil {
		return errors.Wrap(err, "removing course student")
	}
	return nil
}
