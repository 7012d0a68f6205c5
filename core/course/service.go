package course

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
)

var (
	// errors
	ErrNotFound          = errors.New("course not found")
	ErrLessonNotFound    = errors.New("lesson not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrTooManyGroups     = errors.New("maximum number of groups reached for this course")
	ErrGroupNotEmpty     = errors.New("group still has students")
	ErrCourseHasStudents = errors.New("course still has students")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// LockCourse is GetCourse, with the row locked until the end of the transaction exec belongs to.
		LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
		GetLesson(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, courseID, id string, exec ...core.DBExecutor) error

		CreateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		// QueryGroups returns the groups of the course in creation order, along with their StudentsCount.
		QueryGroups(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Group, error)
		GetGroup(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (Group, error)
		UpdateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		DeleteGroup(ctx context.Context, courseID, id string, exec ...core.DBExecutor) error
		QueryGroupStudents(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]GroupStudent, error)
		// FindStudentGroup returns the group of the course userID belongs to, or ErrGroupNotFound.
		FindStudentGroup(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (Group, error)
		AddGroupStudent(ctx context.Context, groupID, userID string, exec ...core.DBExecutor) error
		// RemoveCourseStudent removes userID from every group of the course.
		RemoveCourseStudent(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error
	}

	// StatsRepository computes the sales figures of courses.
	StatsRepository interface {
		CourseStats(ctx context.Context, courseID string, groupCapacity int, exec ...core.DBExecutor) (Stats, error)
	}

	// StatsCache caches Stats; implementations must be safe for concurrent use.
	StatsCache interface {
		GetStats(ctx context.Context, courseID string) (Stats, bool)
		SetStats(ctx context.Context, courseID string, stats Stats)
		InvalidateStats(ctx context.Context, courseIDs ...string)
		InvalidateAllStats(ctx context.Context)
	}

	Options struct {
		MaxGroups     int
		GroupCapacity int
		Cache         StatsCache // optional
		Logger        core.Logger
	}

	Service struct {
		repo      Repository
		statsRepo StatsRepository
		tx        core.Transactor
		opts      Options
	}
)

var orderingFields = []string{"created_at", "start_date", "title", "price"}

// OptionsFromConfig returns the Options set in conf.
func OptionsFromConfig(conf *core.Config, logger core.Logger) Options {
	return Options{
		MaxGroups:     conf.Billing.MaxCourseGroups,
		GroupCapacity: conf.Billing.GroupCapacity,
		Logger:        logger,
	}
}

func NewService(repo Repository, statsRepo StatsRepository, tx core.Transactor, opts Options) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(statsRepo, "statsRepo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(opts.Logger, "opts.Logger"),
		vala.GreaterThan(opts.MaxGroups, 0, "opts.MaxGroups"),
		vala.GreaterThan(opts.GroupCapacity, 0, "opts.GroupCapacity"),
	).CheckAndPanic()

	return &Service{repo: repo, statsRepo: statsRepo, tx: tx, opts: opts}
}

// Courses

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	c := Course{
		Author:      nc.Author,
		Title:       nc.Title,
		StartDate:   nc.StartDate.UTC(),
		Price:       nc.Price,
		IsAvailable: nc.IsAvailable == nil || *nc.IsAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, core.CleanOrdering(ordering, orderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return svc.repo.GetCourse(ctx, id, exec...)
}

// GetDetail returns the course with its stats, and with its lessons if withLessons is set.
func (svc *Service) GetDetail(ctx context.Context, id string, withLessons bool) (Detail, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	stats, err := svc.Stats(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "computing stats")
	}
	d := Detail{Course: c, Stats: stats}
	if withLessons {
		if d.Lessons, err = svc.repo.QueryLessons(ctx, id); err != nil {
			return Detail{}, errors.Wrap(err, "querying lessons")
		}
		if d.Lessons == nil {
			d.Lessons = []Lesson{}
		}
	}
	return d, nil
}

func (svc *Service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	if uc.Author != "" {
		c.Author = uc.Author
	}
	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.StartDate != nil {
		c.StartDate = uc.StartDate.UTC()
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.IsAvailable != nil {
		c.IsAvailable = *uc.IsAvailable
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

// Delete deletes a course nobody is subscribed to; others should be made unavailable instead.
func (svc *Service) Delete(ctx context.Context, id string) error {
	stats, err := svc.statsRepo.CourseStats(ctx, id, svc.opts.GroupCapacity)
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	if stats.StudentsCount > 0 {
		return ErrCourseHasStudents
	}
	if err = svc.repo.DeleteCourse(ctx, id); err != nil {
		return err
	}
	svc.InvalidateStats(ctx, id)
	return nil
}

// Stats returns the (cached) sales figures of the course.
func (svc *Service) Stats(ctx context.Context, courseID string) (Stats, error) {
	if svc.opts.Cache != nil {
		if stats, ok := svc.opts.Cache.GetStats(ctx, courseID); ok {
			return stats, nil
		}
	}
	stats, err := svc.statsRepo.CourseStats(ctx, courseID, svc.opts.GroupCapacity)
	if err != nil {
		return Stats{}, err
	}
	if svc.opts.Cache != nil {
		svc.opts.Cache.SetStats(ctx, courseID, stats)
	}
	return stats, nil
}

func (svc *Service) InvalidateStats(ctx context.Context, courseIDs ...string) {
	if svc.opts.Cache != nil {
		svc.opts.Cache.InvalidateStats(ctx, courseIDs...)
	}
}

// InvalidateAllStats drops every cached Stats, eg: when the number of active users changes.
func (svc *Service) InvalidateAllStats(ctx context.Context) {
	if svc.opts.Cache != nil {
		svc.opts.Cache.InvalidateAllStats(ctx)
	}
}

// Lessons

func (svc *Service) CreateLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Lesson{}, err
	}
	now := time.Now().UTC()
	l := Lesson{
		CourseID:  courseID,
		Title:     nl.Title,
		Link:      nl.Link,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l, err := svc.repo.CreateLesson(ctx, l)
	if err != nil {
		return Lesson{}, err
	}
	svc.InvalidateStats(ctx, courseID)
	return l, nil
}

func (svc *Service) QueryLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *Service) GetLesson(ctx context.Context, courseID, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, courseID, id)
}

func (svc *Service) UpdateLesson(ctx context.Context, l Lesson, ul UpdateLesson) (Lesson, error) {
	if ul.Title != "" {
		l.Title = ul.Title
	}
	if ul.Link != "" {
		l.Link = ul.Link
	}
	l.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateLesson(ctx, l)
}

func (svc *Service) DeleteLesson(ctx context.Context, courseID, id string) error {
	if err := svc.repo.DeleteLesson(ctx, courseID, id); err != nil {
		return err
	}
	svc.InvalidateStats(ctx, courseID)
	return nil
}

// Groups

// CreateGroup adds a group to the course, up to Options.MaxGroups groups.
// Concurrent creations for the same course queue up on the course row.
func (svc *Service) CreateGroup(ctx context.Context, courseID string, ng NewGroup) (Group, error) {
	var g Group
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.LockCourse(ctx, courseID, exec); err != nil {
			return err
		}
		groups, err := svc.repo.QueryGroups(ctx, courseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying groups")
		}
		if len(groups) >= svc.opts.MaxGroups {
			return ErrTooManyGroups
		}

		now := time.Now().UTC()
		g, err = svc.repo.CreateGroup(ctx, Group{
			CourseID:  courseID,
			Title:     ng.Title,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return err
	})
	if err != nil {
		return Group{}, err
	}
	svc.InvalidateStats(ctx, courseID)
	return g, nil
}

func (svc *Service) QueryGroups(ctx context.Context, courseID string) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, courseID)
}

func (svc *Service) GetGroup(ctx context.Context, courseID, id string) (GroupDetail, error) {
	g, err := svc.repo.GetGroup(ctx, courseID, id)
	if err != nil {
		return GroupDetail{}, err
	}
	students, err := svc.repo.QueryGroupStudents(ctx, g.ID)
	if err != nil {
		return GroupDetail{}, errors.Wrap(err, "querying group students")
	}
	if students == nil {
		students = []GroupStudent{}
	}
	return GroupDetail{Group: g, Students: students}, nil
}

func (svc *Service) RenameGroup(ctx context.Context, g Group, ng NewGroup) (Group, error) {
	g.Title = ng.Title
	g.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGroup(ctx, g)
}

// DeleteGroup deletes an empty group.
func (svc *Service) DeleteGroup(ctx context.Context, courseID, id string) error {
	g, err := svc.repo.GetGroup(ctx, courseID, id)
	if err != nil {
		return err
	}
	if g.StudentsCount > 0 {
		return ErrGroupNotEmpty
	}
	if err = svc.repo.DeleteGroup(ctx, courseID, id); err != nil {
		return err
	}
	svc.InvalidateStats(ctx, courseID)
	return nil
}

// Enroll adds userID to the least loaded group of the course, unless they already belong to one.
// It returns the ID of the student's group, or "" if the course has no groups.
func (svc *Service) Enroll(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (string, error) {
	g, err := svc.repo.FindStudentGroup(ctx, courseID, userID, exec...)
	if err == nil {
		return g.ID, nil
	} else if errors.Cause(err) != ErrGroupNotFound {
		return "", errors.Wrap(err, "finding student group")
	}

	groups, err := svc.repo.QueryGroups(ctx, courseID, exec...)
	if err != nil {
		return "", errors.Wrap(err, "querying groups")
	}
	g, ok := PickGroup(groups, svc.opts.MaxGroups)
	if !ok {
		return "", nil
	}
	if err = svc.repo.AddGroupStudent(ctx, g.ID, userID, exec...); err != nil {
		return "", errors.Wrap(err, "adding group student")
	}
	return g.ID, nil
}

// Unenroll removes userID from the groups of the course.
func (svc *Service) Unenroll(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error {
	return svc.repo.RemoveCourseStudent(ctx, courseID, userID, exec...)
}

// PickGroup returns the group with the fewest students among the first maxGroups groups.
// Ties resolve to the earliest group.
func PickGroup(groups []Group, maxGroups int) (Group, bool) {
	if len(groups) > maxGroups {
		groups = groups[:maxGroups]
	}
	if len(groups) == 0 {
		return Group{}, false
	}
	picked := groups[0]
	for _, g := range groups[1:] {
		if g.StudentsCount < picked.StudentsCount {
			picked = g
		}
	}
	return picked, true
}
