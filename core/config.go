package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Address  string
		Password string
		DB       int
		CacheTTL time.Duration
	}

	tracingConfig struct {
		Endpoint    string
		ServiceName string
	}

	billingConfig struct {
		WelcomeBonus    Money
		MaxCourseGroups int
		GroupCapacity   int
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		defaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server   serverConfig
		Database databaseConfig
		Redis    redisConfig
		Tracing  tracingConfig
		Billing  billingConfig
	}
)

func (c databaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// DefaultFromEmail parses the configured sender; an invalid value falls back to "noreply@localhost".
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig loads the configuration of the current environment (`ENV`: DEV (default), TEST, QA, PROD).
// Values are read from env vars prefixed with the environment name, eg: DEV_SECRET_KEY.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("app_name", "Soko")
	v.SetDefault("build", "dev")
	v.SetDefault("secret_key", "k2$v8q-0n@7l!xw3e^p1#z_r6ty(9u)bs5m&c4hj=d+fo*ga")
	v.SetDefault("frontend_base_url", "http://localhost:8080")
	v.SetDefault("default_from_email", "Soko <noreply@localhost>")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("rollbar_token", "")

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debug_address", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "soko")
	v.SetDefault("database_user", "soko")
	v.SetDefault("database_password", "soko")
	v.SetDefault("database_admin_user", "postgres")
	v.SetDefault("database_admin_password", "postgres")
	v.SetDefault("database_disable_tls", true)

	v.SetDefault("redis_address", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_cache_ttl", 5*time.Minute)

	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_service_name", "soko-api")

	v.SetDefault("welcome_bonus", "1000.00")
	v.SetDefault("max_course_groups", 10)
	v.SetDefault("group_capacity", 30)

	v.SetEnvPrefix(env)
	loadDotEnv(env)
	v.AutomaticEnv()

	welcomeBonus, err := ParseMoney(v.GetString("welcome_bonus"))
	if err != nil {
		log.Fatalf("config.welcome_bonus: %v", err)
	}

	return &Config{
		AppName:          v.GetString("app_name"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("test_mode"),
		SecretKey:        v.GetString("secret_key"),
		WorkDir:          workDir(),
		FrontendBaseURL:  v.GetString("frontend_base_url"),
		defaultFromEmail: v.GetString("default_from_email"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		RollbarToken:     v.GetString("rollbar_token"),
		Server: serverConfig{
			Host:                      v.GetString("server_host"),
			Address:                   v.GetString("server_address"),
			DebugAddress:              v.GetString("server_debug_address"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
			PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Redis: redisConfig{
			Address:  v.GetString("redis_address"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			CacheTTL: v.GetDuration("redis_cache_ttl"),
		},
		Tracing: tracingConfig{
			Endpoint:    v.GetString("tracing_endpoint"),
			ServiceName: v.GetString("tracing_service_name"),
		},
		Billing: billingConfig{
			WelcomeBonus:    welcomeBonus,
			MaxCourseGroups: v.GetInt("max_course_groups"),
			GroupCapacity:   v.GetInt("group_capacity"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: debug & test mode on, short-lived tokens.
func NewTestConfig() *Config {
	if err := os.Setenv("ENV", "TEST"); err != nil {
		log.Fatalf("config.os.Setenv: %v", err)
	}
	conf := NewConfig()
	conf.SecretKey = "secret"
	conf.Server.JWTExpirationDelta = 10 * time.Minute
	return conf
}

// loadDotEnv loads config/.env.<env> if it exists (ignored if it does not).
func loadDotEnv(env string) {
	dotEnvPath := filepath.Join(workDir(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
}

// workDir walks up from the current directory until it finds the module root (where go.mod lives).
// go-test changes the working directory to the package being tested, hence the walk.
func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
