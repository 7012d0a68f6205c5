package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/tests"
)

func Test_courseApi_query(t *testing.T) {
	app, env := setup(t)

	now := time.Now()
	goCrs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(300, 0), true, now)
	rustCrs := testutil.CreateCourse(t, env.CourseRepo, "Rust", core.NewMoney(100, 0), true, now.Add(time.Hour))
	cobolCrs := testutil.CreateCourse(t, env.CourseRepo, "Cobol", core.NewMoney(200, 0), false, now.Add(2*time.Hour))

	tests := []httpTest{
		{name: "public", path: "/api/v1/courses", wantData: marchallList(t, cobolCrs, rustCrs, goCrs)},
		{name: "available", path: "/api/v1/courses?available=true", wantData: marchallList(t, rustCrs, goCrs)},
		{name: "unavailable", path: "/api/v1/courses?available=false", wantData: marchallList(t, cobolCrs)},
		{name: "search", path: "/api/v1/courses?search=RU", wantData: marchallList(t, rustCrs)},
		{name: "search (unknown)", path: "/api/v1/courses?search=lol", wantData: marchallList(t)},
		{name: "order by price", path: "/api/v1/courses?ordering=price", wantData: marchallList(t, rustCrs, cobolCrs, goCrs)},
		{name: "order by -title", path: "/api/v1/courses?ordering=-title", wantData: marchallList(t, rustCrs, goCrs, cobolCrs)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.wantCode = http.StatusOK

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_retrieve(t *testing.T) {
	app, env := setup(t)

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(300, 0), true)
	testutil.CreateLesson(t, env.CourseRepo, crs.ID, "intro")
	testutil.CreateLesson(t, env.CourseRepo, crs.ID, "goroutines")
	g1 := testutil.CreateGroup(t, env.CourseRepo, crs.ID, "G1")

	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(1000, 0))
	testutil.CreateStudent(t, env, "S2", "s2", "s2@test.cd", core.NewMoney(1000, 0))
	_, err := env.BillingSvc.Pay(context.Background(), stud.ID, crs.ID)
	require.NoError(t, err)

	// no lessons in the public detail
	want := course.Detail{
		Course: crs,
		Stats: course.Stats{
			LessonsCount:        2,
			StudentsCount:       1,
			GroupsFilledPercent: course.GroupsFilledPercent([]course.Group{{ID: g1.ID, StudentsCount: 1}}, env.Conf.Billing.GroupCapacity),
			DemandCoursePercent: 50,
		},
	}

	tests := []httpTest{
		{name: "public", path: "/api/v1/courses/" + crs.ID, wantCode: http.StatusOK, wantData: marchallObj(t, want)},
		{name: "unknown", path: "/api/v1/courses/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: course.ErrNotFound.Error()})},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_create(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.Money{})
	adminToken := getToken(t, env.Conf, admin)

	startDate := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	valid := marchallObj(t, course.NewCourse{Author: " Soko ", Title: "Go", StartDate: startDate, Price: core.NewMoney(150, 50)})
	reqMsg := "this field is required"

	tests := []httpTest{
		{name: "Auth required", body: valid, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", body: valid, token: getToken(t, env.Conf, stud), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{
			name: "required fields", body: []byte(`{}`), token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"author": reqMsg, "title": reqMsg, "start_date": reqMsg}),
		},
		{
			name: "invalid price", body: []byte(`{"author": "Soko", "title": "Go", "start_date": "2030-01-02T09:00:00Z", "price": "-1.00"}`),
			token: adminToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "price out of range", body: []byte(`{"author": "Soko", "title": "Go", "start_date": "2030-01-02T09:00:00Z", "price": "100000000.00"}`),
			token: adminToken, wantCode: http.StatusBadRequest,
		},
		{name: "created", body: valid, token: adminToken, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/courses"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var crs course.Course
				unmarshal(t, rec, &crs)
				assert.NotEmpty(t, crs.ID)
				assert.Equal(t, "Soko", crs.Author)
				assert.Equal(t, core.NewMoney(150, 50), crs.Price)
				assert.True(t, crs.StartDate.Equal(startDate))
				assert.True(t, crs.IsAvailable)
			}
		})
	}
}

func Test_courseApi_updateAndDestroy(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(1000, 0))
	adminToken, studToken := getToken(t, env.Conf, admin), getToken(t, env.Conf, stud)

	sold := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(100, 0), true)
	unsold := testutil.CreateCourse(t, env.CourseRepo, "Rust", core.NewMoney(100, 0), true)
	_, err := env.BillingSvc.Pay(context.Background(), stud.ID, sold.ID)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "update: admin required", method: http.MethodPut, path: "/api/v1/courses/" + sold.ID, token: studToken, body: []byte(`{"title": "Go!"}`), wantCode: http.StatusForbidden},
		{name: "update: unknown", method: http.MethodPut, path: "/api/v1/courses/lol", token: adminToken, body: []byte(`{"title": "Go!"}`), wantCode: http.StatusNotFound},
		{name: "update", method: http.MethodPut, path: "/api/v1/courses/" + sold.ID, token: adminToken, body: []byte(`{"price": "250.00", "is_available": false}`), wantCode: http.StatusOK},
		{name: "destroy: admin required", method: http.MethodDelete, path: "/api/v1/courses/" + unsold.ID, token: studToken, wantCode: http.StatusForbidden},
		{
			name: "destroy: has students", method: http.MethodDelete, path: "/api/v1/courses/" + sold.ID, token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: course.ErrCourseHasStudents.Error()}),
		},
		{name: "destroy", method: http.MethodDelete, path: "/api/v1/courses/" + unsold.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	crs, err := env.CourseSvc.Get(context.Background(), sold.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", crs.Title)
	assert.Equal(t, core.NewMoney(250, 0), crs.Price)
	assert.False(t, crs.IsAvailable)
}

func Test_courseApi_pay(t *testing.T) {
	app, env := setup(t)

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(300, 0), true)
	closed := testutil.CreateCourse(t, env.CourseRepo, "Cobol", core.NewMoney(300, 0), false)
	g1 := testutil.CreateGroup(t, env.CourseRepo, crs.ID, "G1")

	rich := testutil.CreateStudent(t, env, "Rich", "rich", "rich@test.cd", core.NewMoney(1000, 0))
	poor := testutil.CreateStudent(t, env, "Poor", "poor", "poor@test.cd", core.NewMoney(10, 0))
	richToken := getToken(t, env.Conf, rich)

	payPath := func(id string) string { return "/api/v1/courses/" + id + "/pay" }
	tests := []httpTest{
		{name: "Auth required", path: payPath(crs.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "unknown course", path: payPath("lol"), token: richToken, wantCode: http.StatusNotFound},
		{
			name: "unavailable course", path: payPath(closed.ID), token: richToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: billing.ErrCourseUnavailable.Error()}),
		},
		{
			name: "insufficient balance", path: payPath(crs.ID), token: getToken(t, env.Conf, poor),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: billing.ErrInsufficientBalance.Error()}),
		},
		{name: "paid", path: payPath(crs.ID), token: richToken, wantCode: http.StatusCreated},
		{
			name: "already subscribed", path: payPath(crs.ID), token: richToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: billing.ErrAlreadySubscribed.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var rcpt billing.Receipt
				unmarshal(t, rec, &rcpt)
				assert.Equal(t, core.NewMoney(700, 0), rcpt.Balance.Amount)
				assert.Equal(t, rich.ID, rcpt.Subscription.UserID)
				assert.Equal(t, billing.StatusActive, rcpt.Subscription.Status)
				assert.Equal(t, g1.ID, rcpt.GroupID)
			}
		})
	}

	bal, err := env.BillingSvc.GetBalance(context.Background(), poor.ID)
	require.NoError(t, err)
	assert.Equal(t, core.NewMoney(10, 0), bal.Amount)
}

func Test_courseApi_lessons(t *testing.T) {
	app, env := setup(t)

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(100, 0), true)
	intro := testutil.CreateLesson(t, env.CourseRepo, crs.ID, "intro")
	chans := testutil.CreateLesson(t, env.CourseRepo, crs.ID, "channels")

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	subscribed := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(1000, 0))
	outsider := testutil.CreateStudent(t, env, "S2", "s2", "s2@test.cd", core.NewMoney(1000, 0))
	_, err := env.BillingSvc.Pay(context.Background(), subscribed.ID, crs.ID)
	require.NoError(t, err)

	adminToken := getToken(t, env.Conf, admin)
	subToken, outToken := getToken(t, env.Conf, subscribed), getToken(t, env.Conf, outsider)
	lessonsPath := "/api/v1/courses/" + crs.ID + "/lessons"

	tests := []httpTest{
		{name: "list: auth required", method: http.MethodGet, path: lessonsPath, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "list: not subscribed", method: http.MethodGet, path: lessonsPath, token: outToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "list: subscribed", method: http.MethodGet, path: lessonsPath, token: subToken, wantCode: http.StatusOK, wantData: marchallList(t, intro, chans)},
		{name: "list: admin", method: http.MethodGet, path: lessonsPath, token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, intro, chans)},
		{name: "list: unknown course", method: http.MethodGet, path: "/api/v1/courses/lol/lessons", token: adminToken, wantCode: http.StatusNotFound},
		{name: "get: not subscribed", method: http.MethodGet, path: lessonsPath + "/" + intro.ID, token: outToken, wantCode: http.StatusForbidden},
		{name: "get: subscribed", method: http.MethodGet, path: lessonsPath + "/" + intro.ID, token: subToken, wantCode: http.StatusOK, wantData: marchallObj(t, intro)},
		{
			name: "get: unknown", method: http.MethodGet, path: lessonsPath + "/lol", token: subToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: course.ErrLessonNotFound.Error()}),
		},
		{
			name: "create: admin required", method: http.MethodPost, path: lessonsPath, token: subToken,
			body: marchallObj(t, course.NewLesson{Title: "select", Link: "https://videos.test/select"}), wantCode: http.StatusForbidden,
		},
		{
			name: "create: invalid link", method: http.MethodPost, path: lessonsPath, token: adminToken,
			body:     marchallObj(t, course.NewLesson{Title: "select", Link: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"link": "link must be a valid URL"}),
		},
		{
			name: "create", method: http.MethodPost, path: lessonsPath, token: adminToken,
			body: marchallObj(t, course.NewLesson{Title: "select", Link: "https://videos.test/select"}), wantCode: http.StatusCreated,
		},
		{
			name: "update", method: http.MethodPut, path: lessonsPath + "/" + chans.ID, token: adminToken,
			body: marchallObj(t, course.UpdateLesson{Title: "Channels"}), wantCode: http.StatusOK,
		},
		{name: "delete: admin required", method: http.MethodDelete, path: lessonsPath + "/" + intro.ID, token: subToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: lessonsPath + "/" + intro.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	lessons, err := env.CourseSvc.QueryLessons(context.Background(), crs.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, "Channels", lessons[0].Title)
	assert.Equal(t, chans.Link, lessons[0].Link)
	assert.Equal(t, "select", lessons[1].Title)
}

func Test_courseApi_lessons_deactivatedSubscription(t *testing.T) {
	app, env := setup(t)
	ctx := context.Background()

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(100, 0), true)
	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(1000, 0))
	rcpt, err := env.BillingSvc.Pay(ctx, stud.ID, crs.ID)
	require.NoError(t, err)
	_, err = env.BillingSvc.Deactivate(ctx, rcpt.Subscription.ID)
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/api/v1/courses/"+crs.ID+"/lessons", getToken(t, env.Conf, stud))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_courseApi_groups(t *testing.T) {
	app, env := setup(t, func(conf *core.Config) { conf.Billing.MaxCourseGroups = 2 })
	ctx := context.Background()

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(100, 0), true)
	full := testutil.CreateGroup(t, env.CourseRepo, crs.ID, "G1")

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(1000, 0))
	_, err := env.BillingSvc.Pay(ctx, stud.ID, crs.ID)
	require.NoError(t, err)

	adminToken := getToken(t, env.Conf, admin)
	groupsPath := "/api/v1/courses/" + crs.ID + "/groups"

	fullDetail, err := env.CourseSvc.GetGroup(ctx, crs.ID, full.ID)
	require.NoError(t, err)
	require.Len(t, fullDetail.Students, 1)
	assert.Equal(t, stud.ID, fullDetail.Students[0].UserID)

	tests := []httpTest{
		{name: "list: auth required", method: http.MethodGet, path: groupsPath, wantCode: http.StatusUnauthorized},
		{name: "list: admin required", method: http.MethodGet, path: groupsPath, token: getToken(t, env.Conf, stud), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "list", method: http.MethodGet, path: groupsPath, token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, fullDetail.Group)},
		{name: "get", method: http.MethodGet, path: groupsPath + "/" + full.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, fullDetail)},
		{
			name: "get: unknown", method: http.MethodGet, path: groupsPath + "/lol", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: course.ErrGroupNotFound.Error()}),
		},
		{
			name: "create: required title", method: http.MethodPost, path: groupsPath, token: adminToken, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{name: "create", method: http.MethodPost, path: groupsPath, token: adminToken, body: marchallObj(t, course.NewGroup{Title: "G2"}), wantCode: http.StatusCreated},
		{
			name: "create: too many groups", method: http.MethodPost, path: groupsPath, token: adminToken, body: marchallObj(t, course.NewGroup{Title: "G3"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: course.ErrTooManyGroups.Error()}),
		},
		{name: "rename", method: http.MethodPut, path: groupsPath + "/" + full.ID, token: adminToken, body: marchallObj(t, course.NewGroup{Title: "Gophers"}), wantCode: http.StatusOK},
		{
			name: "delete: not empty", method: http.MethodDelete, path: groupsPath + "/" + full.ID, token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: course.ErrGroupNotEmpty.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	groups, err := env.CourseSvc.QueryGroups(ctx, crs.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Gophers", groups[0].Title)

	// the new group is empty, it can go
	req, rec := newAuthRequest(http.MethodDelete, fmt.Sprintf("%s/%s", groupsPath, groups[1].ID), adminToken)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
