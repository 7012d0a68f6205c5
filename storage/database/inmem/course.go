package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
)

type courseRepository struct {
	db  *courseTable
	all *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course, all: db}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// Courses

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		if filter != nil {
			if filter.Search != "" {
				kw := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(c.Title), kw) && !strings.Contains(strings.ToLower(c.Author), kw) {
					continue
				}
			}
			if filter.Available != nil && c.IsAvailable != *filter.Available {
				continue
			}
		}
		courses = append(courses, c)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "created_at":
				cmp = compareTimes(a.CreatedAt, b.CreatedAt)
			case "start_date":
				cmp = compareTimes(a.StartDate, b.StartDate)
			case "title":
				cmp = strings.Compare(a.Title, b.Title)
			case "price":
				cmp = a.Price.Cmp(b.Price)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

// LockCourse is GetCourse: units of work are already serialized by the transactor.
func (repo *courseRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	return repo.GetCourse(ctx, id, exec...)
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.courses[c.ID] = c
	return c, nil
}

// DeleteCourse also deletes its lessons, groups, subscriptions & accesses.
func (repo *courseRepository) DeleteCourse(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()
	bil := repo.all.billing
	bil.Lock()
	defer bil.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)

	lessons := repo.db.lessons[:0]
	for _, l := range repo.db.lessons {
		if l.CourseID != id {
			lessons = append(lessons, l)
		}
	}
	repo.db.lessons = lessons

	deletedGroups := make(map[string]bool)
	groups := repo.db.groups[:0]
	for _, g := range repo.db.groups {
		if g.CourseID == id {
			deletedGroups[g.ID] = true
		} else {
			groups = append(groups, g)
		}
	}
	repo.db.groups = groups
	repo.removeStudents(func(gs groupStudent) bool { return deletedGroups[gs.groupID] })

	subs := bil.subscriptions[:0]
	for _, s := range bil.subscriptions {
		if s.CourseID != id {
			subs = append(subs, s)
		}
	}
	bil.subscriptions = subs
	accesses := bil.accesses[:0]
	for _, a := range bil.accesses {
		if a.CourseID != id {
			accesses = append(accesses, a)
		}
	}
	bil.accesses = accesses
	return nil
}

// Lessons

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	l.ID = uuid.New().String()
	repo.db.lessons = append(repo.db.lessons, l)
	return l, nil
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, l)
		}
	}
	return lessons, nil
}

func (repo *courseRepository) lessonIndex(courseID, id string) int {
	for i, l := range repo.db.lessons {
		if l.CourseID == courseID && l.ID == id {
			return i
		}
	}
	return -1
}

func (repo *courseRepository) GetLesson(_ context.Context, courseID, id string, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if i := repo.lessonIndex(courseID, id); i >= 0 {
		return repo.db.lessons[i], nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) UpdateLesson(_ context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	i := repo.lessonIndex(l.CourseID, l.ID)
	if i < 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	repo.db.lessons[i] = l
	return l, nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, courseID, id string, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	i := repo.lessonIndex(courseID, id)
	if i < 0 {
		return course.ErrLessonNotFound
	}
	repo.db.lessons = append(repo.db.lessons[:i:i], repo.db.lessons[i+1:]...)
	return nil
}

// Groups

// withCount expects db to be locked.
func (repo *courseRepository) withCount(g course.Group) course.Group {
	g.StudentsCount = 0
	for _, gs := range repo.db.students {
		if gs.groupID == g.ID {
			g.StudentsCount++
		}
	}
	return g
}

func (repo *courseRepository) groupIndex(courseID, id string) int {
	for i, g := range repo.db.groups {
		if g.CourseID == courseID && g.ID == id {
			return i
		}
	}
	return -1
}

func (repo *courseRepository) CreateGroup(_ context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[g.CourseID]; !ok {
		return course.Group{}, course.ErrNotFound
	}
	g.ID = uuid.New().String()
	g.StudentsCount = 0
	repo.db.groups = append(repo.db.groups, g)
	return g, nil
}

func (repo *courseRepository) QueryGroups(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryGroups(courseID), nil
}

// queryGroups expects db to be locked.
func (repo *courseRepository) queryGroups(courseID string) []course.Group {
	groups := make([]course.Group, 0)
	for _, g := range repo.db.groups {
		if g.CourseID == courseID {
			groups = append(groups, repo.withCount(g))
		}
	}
	return groups
}

func (repo *courseRepository) GetGroup(_ context.Context, courseID, id string, _ ...core.DBExecutor) (course.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if i := repo.groupIndex(courseID, id); i >= 0 {
		return repo.withCount(repo.db.groups[i]), nil
	}
	return course.Group{}, course.ErrGroupNotFound
}

func (repo *courseRepository) UpdateGroup(_ context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	i := repo.groupIndex(g.CourseID, g.ID)
	if i < 0 {
		return course.Group{}, course.ErrGroupNotFound
	}
	repo.db.groups[i].Title = g.Title
	repo.db.groups[i].UpdatedAt = g.UpdatedAt
	return repo.withCount(repo.db.groups[i]), nil
}

func (repo *courseRepository) DeleteGroup(_ context.Context, courseID, id string, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	i := repo.groupIndex(courseID, id)
	if i < 0 {
		return course.ErrGroupNotFound
	}
	repo.db.groups = append(repo.db.groups[:i:i], repo.db.groups[i+1:]...)
	repo.removeStudents(func(gs groupStudent) bool { return gs.groupID == id })
	return nil
}

func (repo *courseRepository) QueryGroupStudents(_ context.Context, groupID string, _ ...core.DBExecutor) ([]course.GroupStudent, error) {
	users := repo.all.user
	users.RLock()
	defer users.RUnlock()
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]course.GroupStudent, 0)
	for _, gs := range repo.db.students {
		if gs.groupID != groupID {
			continue
		}
		usr := users.table[gs.userID]
		students = append(students, course.GroupStudent{
			UserID:   gs.userID,
			Name:     usr.FullName(),
			Email:    usr.Email,
			JoinedAt: gs.joinedAt,
		})
	}
	return students, nil
}

func (repo *courseRepository) FindStudentGroup(_ context.Context, courseID, userID string, _ ...core.DBExecutor) (course.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, g := range repo.db.groups {
		if g.CourseID != courseID {
			continue
		}
		for _, gs := range repo.db.students {
			if gs.groupID == g.ID && gs.userID == userID {
				return repo.withCount(g), nil
			}
		}
	}
	return course.Group{}, course.ErrGroupNotFound
}

func (repo *courseRepository) AddGroupStudent(_ context.Context, groupID, userID string, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, gs := range repo.db.students {
		if gs.groupID == groupID && gs.userID == userID {
			return nil
		}
	}
	repo.db.students = append(repo.db.students, groupStudent{groupID: groupID, userID: userID, joinedAt: time.Now().UTC()})
	return nil
}

func (repo *courseRepository) RemoveCourseStudent(_ context.Context, courseID, userID string, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	courseGroups := make(map[string]bool)
	for _, g := range repo.db.groups {
		if g.CourseID == courseID {
			courseGroups[g.ID] = true
		}
	}
	repo.removeStudents(func(gs groupStudent) bool { return gs.userID == userID && courseGroups[gs.groupID] })
	return nil
}

// removeStudents expects db to be locked.
func (repo *courseRepository) removeStudents(remove func(gs groupStudent) bool) {
	students := repo.db.students[:0]
	for _, gs := range repo.db.students {
		if !remove(gs) {
			students = append(students, gs)
		}
	}
	repo.db.students = students
}

type statsRepository struct {
	db *DB
}

var _ course.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) course.StatsRepository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) CourseStats(_ context.Context, courseID string, groupCapacity int, _ ...core.DBExecutor) (course.Stats, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	repo.db.billing.RLock()
	defer repo.db.billing.RUnlock()

	if _, ok := repo.db.course.courses[courseID]; !ok {
		return course.Stats{}, course.ErrNotFound
	}

	var stats course.Stats
	for _, l := range repo.db.course.lessons {
		if l.CourseID == courseID {
			stats.LessonsCount++
		}
	}
	for _, s := range repo.db.billing.subscriptions {
		if s.CourseID == courseID && s.Status == billing.StatusActive {
			stats.StudentsCount++
		}
	}

	crsRepo := courseRepository{db: repo.db.course, all: repo.db}
	stats.GroupsFilledPercent = course.GroupsFilledPercent(crsRepo.queryGroups(courseID), groupCapacity)
	stats.DemandCoursePercent = course.Percent(stats.StudentsCount, countActiveUsers(repo.db.user))
	return stats, nil
}
