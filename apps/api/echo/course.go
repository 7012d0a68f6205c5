package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

type courseApi struct {
	svc        *course.Service
	billingSvc *billing.Service
	userSvc    user.ServiceInterface
	validate   *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:        deps.CourseSvc,
		billingSvc: deps.BillingSvc,
		userSvc:    deps.UserSvc,
		validate:   deps.Validate,
	}
	admin := adminMiddleware()

	cg := g.Group("/courses")

	cg.POST("", api.create, jwt, admin)

	dg := cg.Group("/:id", jwt, courseMiddleware(api.svc))
	dg.PUT("", api.update, admin)
	dg.DELETE("", api.destroy, admin)
	dg.POST("/pay", api.pay)

	lg := dg.Group("/lessons")
	lessonAccess := lessonAccessMiddleware(api.userSvc, api.billingSvc)
	lg.GET("", api.queryLessons, lessonAccess)
	lg.POST("", api.createLesson, admin)
	lg.GET("/:lesson_id", api.retrieveLesson, lessonAccess)
	lg.PUT("/:lesson_id", api.updateLesson, admin)
	lg.DELETE("/:lesson_id", api.destroyLesson, admin)

	gg := dg.Group("/groups", admin)
	gg.GET("", api.queryGroups)
	gg.POST("", api.createGroup)
	gg.GET("/:group_id", api.retrieveGroup)
	gg.PUT("/:group_id", api.renameGroup)
	gg.DELETE("/:group_id", api.destroyGroup)

	// public endpoints, added after the `/:id` group which routes every method through jwt
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
}

// Courses

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	detail, err := api.svc.GetDetail(ctx.Request().Context(), ctx.Param("id"), false)
	if err != nil {
		return errors.Wrap(err, "getting course detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if crs, err = api.svc.Update(ctx.Request().Context(), crs, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), crs.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// pay lets the context user pay for the context course.
func (api *courseApi) pay(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rcpt, err := api.billingSvc.Pay(ctx.Request().Context(), ctxUsr.ID, crs.ID)
	if err != nil {
		return errors.Wrap(err, "paying for course")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

// Lessons

func (api *courseApi) queryLessons(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

func (api *courseApi) retrieveLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), crs.ID, ctx.Param("lesson_id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), crs.ID, ctx.Param("lesson_id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}

	var data course.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if lesson, err = api.svc.UpdateLesson(ctx.Request().Context(), lesson, data); err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), crs.ID, ctx.Param("lesson_id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Groups

func (api *courseApi) queryGroups(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	groups, err := api.svc.QueryGroups(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []course.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *courseApi) createGroup(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	group, err := api.svc.CreateGroup(ctx.Request().Context(), crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, group)
}

func (api *courseApi) retrieveGroup(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	group, err := api.svc.GetGroup(ctx.Request().Context(), crs.ID, ctx.Param("group_id"))
	if err != nil {
		return errors.Wrap(err, "getting group")
	}
	return ctx.JSON(http.StatusOK, group)
}

func (api *courseApi) renameGroup(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	group, err := api.svc.GetGroup(ctx.Request().Context(), crs.ID, ctx.Param("group_id"))
	if err != nil {
		return errors.Wrap(err, "getting group")
	}

	var data course.NewGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	renamed, err := api.svc.RenameGroup(ctx.Request().Context(), group.Group, data)
	if err != nil {
		return errors.Wrap(err, "renaming group")
	}
	return ctx.JSON(http.StatusOK, renamed)
}

func (api *courseApi) destroyGroup(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteGroup(ctx.Request().Context(), crs.ID, ctx.Param("group_id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}
