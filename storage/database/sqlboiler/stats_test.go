package boiledrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func subscribe(t *testing.T, env *testutil.Env, userID, courseID, status string) {
	t.Helper()

	now := time.Now().UTC()
	_, err := env.BillingRepo.CreateSubscription(context.Background(), billing.Subscription{
		UserID:       userID,
		CourseID:     courseID,
		Status:       status,
		SubscribedAt: now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
}

func TestStatsRepository_CourseStats(t *testing.T) {
	env := testutil.NewPostgresEnv(t)
	ctx := context.Background()

	var studs []user.User
	for _, uname := range []string{"luffy", "zoro", "nami", "usopp"} {
		studs = append(studs, testutil.CreateUser(t, env.UserRepo, "", uname, uname+"@test.cd", "", []string{user.RoleStudent}, true))
	}
	// inactive users are left out of the demand
	sanji := testutil.CreateUser(t, env.UserRepo, "", "sanji", "sanji@test.cd", "", []string{user.RoleStudent}, false)

	golang := testutil.CreateCourse(t, env.CourseRepo, "Golang", core.NewMoney(100, 0), true)
	rust := testutil.CreateCourse(t, env.CourseRepo, "Rust", core.NewMoney(100, 0), true)
	empty := testutil.CreateCourse(t, env.CourseRepo, "Empty", core.NewMoney(100, 0), true)

	testutil.CreateLesson(t, env.CourseRepo, golang.ID, "intro")
	testutil.CreateLesson(t, env.CourseRepo, golang.ID, "types")
	testutil.CreateLesson(t, env.CourseRepo, rust.ID, "intro")

	g1 := testutil.CreateGroup(t, env.CourseRepo, golang.ID, "G1")
	g2 := testutil.CreateGroup(t, env.CourseRepo, golang.ID, "G2")
	testutil.AddGroupStudents(t, env.CourseRepo, g1.ID, studs[0].ID, studs[1].ID)
	testutil.AddGroupStudents(t, env.CourseRepo, g2.ID, studs[2].ID)

	subscribe(t, env, studs[0].ID, golang.ID, billing.StatusActive)
	subscribe(t, env, studs[1].ID, golang.ID, billing.StatusActive)
	subscribe(t, env, studs[2].ID, golang.ID, billing.StatusActive)
	subscribe(t, env, studs[3].ID, golang.ID, billing.StatusInactive)
	subscribe(t, env, sanji.ID, rust.ID, billing.StatusActive)

	tests := []struct {
		name     string
		courseID string
		capacity int
		want     course.Stats
		wantErr  error
	}{
		{
			name:     "course with groups",
			courseID: golang.ID,
			capacity: 4,
			want: course.Stats{
				LessonsCount:        2,
				StudentsCount:       3,
				GroupsFilledPercent: 37.5,
				DemandCoursePercent: 75,
			},
		},
		{
			name:     "course without groups",
			courseID: rust.ID,
			capacity: 4,
			want:     course.Stats{LessonsCount: 1, StudentsCount: 1, DemandCoursePercent: 25},
		},
		{
			name:     "capacity of 3",
			courseID: golang.ID,
			capacity: 3,
			want: course.Stats{
				LessonsCount:        2,
				StudentsCount:       3,
				GroupsFilledPercent: 50,
				DemandCoursePercent: 75,
			},
		},
		{name: "empty course", courseID: empty.ID, capacity: 4, want: course.Stats{}},
		{name: "unknown course", courseID: "00000000-0000-0000-0000-000000000000", capacity: 4, wantErr: course.ErrNotFound},
		{name: "malformed ID", courseID: "lol", capacity: 4, wantErr: course.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.StatsRepo.CourseStats(ctx, tt.courseID, tt.capacity)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
