package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/user"
)

type billingApi struct {
	svc      *billing.Service
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func newBillingApi(deps ServerDeps) *billingApi {
	return &billingApi{svc: deps.BillingSvc, userSvc: deps.UserSvc, validate: deps.Validate}
}

// registerUserBillingAPI registers the billing endpoints of the user detail group `/users/:id`.
func registerUserBillingAPI(dg *echo.Group, deps ServerDeps) {
	api := newBillingApi(deps)

	dg.GET("/balance", api.retrieveBalance)
	dg.POST("/balance", api.topUp, adminMiddleware())
	dg.GET("/subscriptions", api.querySubscriptions)
	dg.GET("/products", api.queryProducts)
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := newBillingApi(deps)

	g.POST("/payments", api.pay, jwt, adminMiddleware())
	g.DELETE("/subscriptions/:id", api.deactivate, jwt, adminMiddleware())
}

// Handlers

func (api *billingApi) retrieveBalance(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	bal, err := api.svc.GetBalance(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting balance")
	}
	return ctx.JSON(http.StatusOK, bal)
}

func (api *billingApi) topUp(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}

	var data billing.TopUp
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TopUp")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	bal, err := api.svc.AddBonus(ctx.Request().Context(), usr.ID, data.Amount)
	if err != nil {
		return errors.Wrap(err, "adding bonus")
	}
	return ctx.JSON(http.StatusOK, bal)
}

func (api *billingApi) querySubscriptions(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Subscriptions(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []billing.SubscriptionDetail{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *billingApi) queryProducts(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	accesses, err := api.svc.Accesses(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying accesses")
	}
	if accesses == nil {
		accesses = []billing.Access{}
	}
	return ctx.JSON(http.StatusOK, accesses)
}

// pay lets an admin pay for a course on behalf of a user.
func (api *billingApi) pay(ctx echo.Context) error {
	var data billing.PaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rcpt, err := api.svc.Pay(ctx.Request().Context(), data.UserID, data.CourseID)
	if err != nil {
		return errors.Wrap(err, "paying for course")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *billingApi) deactivate(ctx echo.Context) error {
	sub, err := api.svc.Deactivate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}
