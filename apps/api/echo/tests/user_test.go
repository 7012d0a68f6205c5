package tests

import (
	"context"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/soko/apps/api/echo"
	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func Test_userApi_query(t *testing.T) {
	app, env := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	usr1 := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true, now.Add(1*time.Hour))
	usr2 := testutil.CreateUser(t, env.UserRepo, "King", "user02", "king@test.cd", "", []string{user.RoleStudent}, true, now)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(2*time.Hour))
	owner := testutil.CreateUser(t, env.UserRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false, now.Add(4*time.Hour))

	adminToken := getToken(t, env.Conf, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/api/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", path: "/api/v1/users", token: getToken(t, env.Conf, usr1), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "Get all", path: "/api/v1/users", token: adminToken, wantData: marchallList(t, naughty, owner, admin, usr1, usr2)},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: marchallList(t)},
		{name: "search=USE", path: path("USE", "", nil), token: adminToken, wantData: marchallList(t, usr1, usr2)},
		{name: "role (unknown)", path: path("", "", nil, "lol"), token: adminToken, wantData: marchallList(t)},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, owner, admin)},
		{name: "role=student:", path: path("", "", nil, user.RoleStudent), token: adminToken, wantData: marchallList(t, naughty, usr1, usr2)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{name: "all combo", path: path("u", "", bPtr(true), user.RoleStudent), token: adminToken, wantData: marchallList(t, usr1, usr2)},
		// ordering
		{name: "order by created_at", path: path("", "created_at", nil), token: adminToken, wantData: marchallList(t, usr2, usr1, admin, owner, naughty)},
		{name: "order by username", path: path("", "username", nil), token: adminToken, wantData: marchallList(t, admin, usr1, naughty, owner, usr2)},
		{name: "unknown ordering is ignored", path: path("", "password_hash", nil), token: adminToken, wantData: marchallList(t, naughty, owner, admin, usr1, usr2)},
		{name: "filtering & ordering", path: path("", "-username", nil, user.RoleStudent), token: adminToken, wantData: marchallList(t, usr2, naughty, usr1)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_signUp(t *testing.T) {
	app, env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken", "taken@test.cd", "", nil, true)

	valid := user.NewUser{
		Email:           "Hero@Test.cd",
		Username:        "hero",
		FirstName:       "Hero",
		LastName:        "Zero",
		Password:        "LolC@t123",
		PasswordConfirm: "LolC@t123",
		Roles:           []string{user.RoleAdminOwner}, // ignored
	}
	taken := valid
	taken.Username = "taken"

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.SuccessResponse{}),
			wantData: marchallObj(t, map[string]string{
				"email": reqMsg, "username": reqMsg, "first_name": reqMsg, "last_name": reqMsg,
				"password": reqMsg, "password_confirm": reqMsg,
			}),
		},
		{
			name: "username taken", wantCode: http.StatusBadRequest, body: marchallObj(t, taken),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{name: "signed up", wantCode: http.StatusCreated, body: marchallObj(t, valid)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			env.Mail.Clear()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode != http.StatusCreated {
				assert.Empty(t, env.Mail.SentMessages())
				return
			}

			var usr user.User
			unmarshal(t, rec, &usr)
			assert.Equal(t, "hero@test.cd", usr.Email)
			assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
			assert.True(t, usr.IsActive)

			// students start with the welcome bonus
			bal, err := env.BillingSvc.GetBalance(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.Equal(t, core.NewMoney(1000, 0), bal.Amount)

			sent := env.Mail.SentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, mail.Address{Name: "Hero Zero", Address: "hero@test.cd"}, sent[0].To[0])
			assert.Contains(t, sent[0].TextContent, "1000.00")
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	student := testutil.CreateStudent(t, env, "Hero", "hero", "hero@test.cd", core.Money{})

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Email:           uname + "@test.cd",
			Username:        uname,
			FirstName:       "First",
			LastName:        "Last",
			Password:        "LolC@t123",
			PasswordConfirm: "LolC@t123",
			Roles:           roles,
		})
	}

	tests := []httpTest{
		{name: "Auth required", body: newUser("luffy"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", body: newUser("luffy"), token: getToken(t, env.Conf, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "Username too short", body: newUser("lu"), token: getToken(t, env.Conf, admin), wantCode: http.StatusBadRequest},
		{
			name: "Cannot grant a higher role", body: newUser("luffy", user.RoleAdminOwner), token: getToken(t, env.Conf, admin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "Admin created", body: newUser("zoro", user.RoleAdmin), token: getToken(t, env.Conf, admin), wantCode: http.StatusCreated, extra: false},
		{name: "Student created", body: newUser("nami"), token: getToken(t, env.Conf, admin), wantCode: http.StatusCreated, extra: true},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if wantBalance, ok := tt.extra.(bool); ok {
				var usr user.User
				unmarshal(t, rec, &usr)
				_, err := env.BillingSvc.GetBalance(context.Background(), usr.ID)
				if wantBalance {
					assert.NoError(t, err)
				} else {
					assert.Equal(t, billing.ErrBalanceNotFound, errors.Cause(err))
				}
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	app, env := setup(t)

	pwd := "LolC@t123"
	testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": reqMsg, "password": reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", wantCode: http.StatusForbidden, body: marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", wantCode: http.StatusOK, body: marchallObj(t, echoapi.LoginRequest{Username: "HERO", Password: pwd})},
		{name: "by email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.LoginRequest{Username: "hero@test.cd", Password: pwd})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				require.NotEmpty(t, resp.Token)

				// the token grants access to the own account
				usr, err := env.UserSvc.GetByUsernameOrEmail(context.Background(), "hero")
				require.NoError(t, err)
				assert.False(t, usr.LastLogin.IsZero())
				req, rec := newAuthRequest(http.MethodGet, "/api/v1/users/"+usr.ID, resp.Token)
				app.ServeHTTP(rec, req)
				assert.Equal(t, http.StatusOK, rec.Code)
			}
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app, env := setup(t)

	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	// older than the refresh threshold
	origIat := time.Now().Add(-2 * env.Conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := echoapi.GenerateToken(env.Conf, echoapi.GetUserClaims(env.Conf, student, origIat))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Invalid token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "Inactive user not allowed", token: getToken(t, env.Conf, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, env.Conf, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_deactivatedTokens(t *testing.T) {
	app, env := setup(t)
	ctx := context.Background()

	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", core.NewMoney(100, 0), true)
	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	stud := testutil.CreateStudent(t, env, "Hero", "hero", "hero@test.cd", core.NewMoney(1000, 0))
	_, err := env.BillingSvc.Pay(ctx, stud.ID, crs.ID)
	require.NoError(t, err)

	// tokens issued before the accounts got deactivated
	adminToken, studToken := getToken(t, env.Conf, admin), getToken(t, env.Conf, stud)
	for _, usr := range []user.User{admin, stud} {
		usr.IsActive = false
		_, err = env.UserRepo.UpdateUser(ctx, usr)
		require.NoError(t, err)
	}

	deactivated := marchallObj(t, httpErr{Error: "account deactivated"})
	tests := []httpTest{
		{name: "own detail", method: http.MethodGet, path: "/api/v1/users/" + stud.ID, token: studToken, wantCode: http.StatusForbidden, wantData: deactivated},
		{name: "own balance", method: http.MethodGet, path: "/api/v1/users/" + stud.ID + "/balance", token: studToken, wantCode: http.StatusForbidden, wantData: deactivated},
		{name: "lessons", method: http.MethodGet, path: "/api/v1/courses/" + crs.ID + "/lessons", token: studToken, wantCode: http.StatusForbidden, wantData: deactivated},
		{name: "admin listing", method: http.MethodGet, path: "/api/v1/users", token: adminToken, wantCode: http.StatusForbidden, wantData: deactivated},
		{
			name: "admin payment", method: http.MethodPost, path: "/api/v1/payments", token: adminToken,
			body: marchallObj(t, billing.PaymentRequest{UserID: stud.ID, CourseID: crs.ID}), wantCode: http.StatusForbidden, wantData: deactivated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	hero := testutil.CreateStudent(t, env, "Hero", "hero", "hero@test.cd", core.Money{})
	other := testutil.CreateStudent(t, env, "Other", "other", "other@test.cd", core.Money{})
	adminToken, heroToken := getToken(t, env.Conf, admin), getToken(t, env.Conf, hero)
	bPtr := func(b bool) *bool { return &b }

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/api/v1/users/" + hero.ID, wantCode: http.StatusUnauthorized},
		{name: "Own account", method: http.MethodGet, path: "/api/v1/users/" + hero.ID, token: heroToken, wantCode: http.StatusOK, wantData: marchallObj(t, hero)},
		{name: "Other account is hidden", method: http.MethodGet, path: "/api/v1/users/" + other.ID, token: heroToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "Admin sees all", method: http.MethodGet, path: "/api/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, other)},
		{name: "Unknown user", method: http.MethodGet, path: "/api/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "Students cannot change their roles", method: http.MethodPut, path: "/api/v1/users/" + hero.ID, token: heroToken,
			body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}), wantCode: http.StatusForbidden,
		},
		{
			name: "Students update their names", method: http.MethodPut, path: "/api/v1/users/" + hero.ID, token: heroToken,
			body: marchallObj(t, user.UpdateUser{FirstName: "Super"}), wantCode: http.StatusOK,
		},
		{
			name: "Admin deactivates", method: http.MethodPut, path: "/api/v1/users/" + other.ID, token: adminToken,
			body: marchallObj(t, user.UpdateUser{IsActive: bPtr(false)}), wantCode: http.StatusOK,
		},
		{name: "Students cannot delete", method: http.MethodDelete, path: "/api/v1/users/" + hero.ID, token: heroToken, wantCode: http.StatusForbidden},
		{name: "Admin cannot delete themselves", method: http.MethodDelete, path: "/api/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "Admin deletes", method: http.MethodDelete, path: "/api/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	ctx := context.Background()
	hero, err := env.UserSvc.GetByID(ctx, hero.ID)
	require.NoError(t, err)
	assert.Equal(t, "Super", hero.FirstName)
	assert.Equal(t, []string{user.RoleStudent}, hero.Roles)
	_, err = env.UserSvc.GetByID(ctx, other.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func Test_userApi_destroyMultiple(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")
	usr1 := testutil.CreateStudent(t, env, "U1", "u1", "u1@test.cd", core.Money{})
	usr2 := testutil.CreateStudent(t, env, "U2", "u2", "u2@test.cd", core.Money{})
	adminToken := getToken(t, env.Conf, admin)

	path := func(ids ...string) string {
		v := make(url.Values)
		for _, id := range ids {
			v.Add("id", id)
		}
		return "/api/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "Admin required", path: path(usr1.ID), token: getToken(t, env.Conf, usr2), wantCode: http.StatusForbidden},
		{name: "No ids", path: path(), token: adminToken, wantCode: http.StatusNoContent},
		{name: "Cannot delete themselves", path: path(usr1.ID, admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "Unknown ids", path: path("lol"), token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: user.ErrNoUsersDeleted.Error()})},
		{name: "Deleted", path: path(usr1.ID, usr2.ID), token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	count, err := env.UserSvc.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_userApi_resetPassword(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	pathRegex := regexp.MustCompile("/password-reset/.+/.+")

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.FullName(), Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			env.Mail.Clear()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			extra, ok := tt.extra.(extraTest)
			if !ok {
				return
			}
			sent := env.Mail.SentMessages()
			if !extra.emailSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			msg := sent[0]
			assert.Equal(t, extra.to, msg.To[0])
			assert.True(t, strings.Contains(msg.TextContent, extra.to.Name), "text content does not contain the recipient's name")
			assert.True(t, strings.Contains(msg.HTMLContent, extra.to.Name), "HTML content does not contain the recipient's name")
			assert.Regexp(t, pathRegex, msg.TextContent)
			assert.Regexp(t, pathRegex, msg.HTMLContent)
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "OldC@t123", []string{user.RoleStudent}, true)
	require.NoError(t, env.UserSvc.RequestPasswordReset(context.Background(), student.Email))
	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	data := sent[0].TemplateData.(map[string]string)
	validUID, validToken := data["UID"], data["Token"]

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid pwd: min len", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password must contain at least 8 characters"}),
		},
		{
			name: "invalid pwd: too common", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "P@$$w0rd", PasswordConfirm: "P@$$w0rd"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password is too common"}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "LolC@t123", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{PasswordConfirm: "password_confirm must be equal to Password"}),
		},
		{
			name: "user not found", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: "bG9s", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	usr, err := env.UserSvc.GetByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("LolC@t123"))
}

func Test_userApi_queryRoles(t *testing.T) {
	app, env := setup(t)
	admin := testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")

	req, rec := newAuthRequest(http.MethodGet, "/api/v1/users/roles", getToken(t, env.Conf, admin))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
}
