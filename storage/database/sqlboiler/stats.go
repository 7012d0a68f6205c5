package boiledrepos

import (
	"context"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
)

// students are the users with an active subscription to the course.
const courseStatsQuery = `
WITH course_groups AS (
	SELECT g.id, (SELECT COUNT(*) FROM group_student gs WHERE gs.group_id = g.id) AS students
	FROM "group" g
	WHERE g.course_id = $1
)
SELECT
	EXISTS (SELECT 1 FROM course c WHERE c.id = $1) AS course_exists,
	(SELECT COUNT(*) FROM lesson l WHERE l.course_id = $1) AS lessons_count,
	(SELECT COUNT(*) FROM subscription s WHERE s.course_id = $1 AND s.status = 'active') AS students_count,
	(SELECT COUNT(*) FROM "user" u WHERE u.is_active) AS active_users_count,
	COALESCE((SELECT AVG(cg.students::float8 / $2 * 100) FROM course_groups cg), 0) AS groups_filled_percent`

type statsRow struct {
	CourseExists        bool    `boil:"course_exists"`
	LessonsCount        int     `boil:"lessons_count"`
	StudentsCount       int     `boil:"students_count"`
	ActiveUsersCount    int     `boil:"active_users_count"`
	GroupsFilledPercent float64 `boil:"groups_filled_percent"`
}

type statsRepository struct {
	exec boil.ContextExecutor
}

var _ course.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(exec boil.ContextExecutor) course.StatsRepository {
	return &statsRepository{exec: exec}
}

func (repo *statsRepository) getExec(svcExec []core.DBExecutor) boil.ContextExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo *statsRepository) CourseStats(ctx context.Context, courseID string, groupCapacity int, exec ...core.DBExecutor) (course.Stats, error) {
	if _, err := uuid.Parse(courseID); err != nil {
		return course.Stats{}, course.ErrNotFound
	}

	var row statsRow
	if err := queries.Raw(courseStatsQuery, courseID, groupCapacity).Bind(ctx, repo.getExec(exec), &row); err != nil {
		return course.Stats{}, errors.Wrap(err, "computing course stats")
	}
	if !row.CourseExists {
		return course.Stats{}, course.ErrNotFound
	}
	return course.Stats{
		LessonsCount:        row.LessonsCount,
		StudentsCount:       row.StudentsCount,
		GroupsFilledPercent: course.RoundPercent(row.GroupsFilledPercent),
		DemandCoursePercent: course.Percent(row.StudentsCount, row.ActiveUsersCount),
	}, nil
}
