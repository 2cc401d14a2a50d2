package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default) | TEST | QA | PROD
		Build    string
		AppName  string

		SecretKey        string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server struct {
			Host                      string
			Address                   string
			DebugHost                 string
			ShutdownTimeout           time.Duration
			JWTExpirationDelta        time.Duration
			JWTRefreshExpirationDelta time.Duration
		}

		Database struct {
			Engine        string
			Name          string
			Host          string
			Port          string
			User          string
			Password      string
			AdminUser     string
			AdminPassword string
			DisableTLS    bool
		}

		// School settings.
		ClassDay        time.Weekday  // the only weekday attendance may be marked on
		MaxNoteLen      int           // absence reason length bound
		SessionTimeout  time.Duration // idle pending-edit workspaces are discarded after this
		ConfirmTTL      time.Duration // bulk confirmation tokens expire after this
		StreakLookback  int           // record window for consecutive-absence streaks
		DefaultLanguage string
		SeedMembers     []SeedMember
	}

	// SeedMember is one entry of the USERS env variable
	// ("telegram_id:role:class_id,..."); it provisions the initial actor table.
	SeedMember struct {
		TelegramID int64
		Role       int
		ClassID    *int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "SchoolBot")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "kt*2ml)d9$+yq=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", "localhost:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "schoolbot")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbUser", "schoolbot")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("classDay", int(time.Saturday))
	v.SetDefault("maxNoteLen", 100)
	v.SetDefault("sessionTimeout", time.Hour)
	v.SetDefault("confirmTTL", 5*time.Minute)
	v.SetDefault("streakLookback", 20)
	v.SetDefault("defaultLanguage", "ar")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: mail.Address{Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		ClassDay:         time.Weekday(v.GetInt("classDay")),
		MaxNoteLen:       v.GetInt("maxNoteLen"),
		SessionTimeout:   v.GetDuration("sessionTimeout"),
		ConfirmTTL:       v.GetDuration("confirmTTL"),
		StreakLookback:   v.GetInt("streakLookback"),
		DefaultLanguage:  v.GetString("defaultLanguage"),
		SeedMembers:      parseSeedMembers(v.GetString("users")),
	}
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.Address = v.GetString("serverAddress")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("jwtRefreshExpirationDelta")
	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.Port = v.GetString("dbPort")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.AdminUser = v.GetString("dbAdminUser")
	conf.Database.AdminPassword = v.GetString("dbAdminPassword")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")
	return conf
}

func (c *Config) DatabaseAddress() string {
	return c.Database.Host + ":" + c.Database.Port
}

// parseSeedMembers parses the USERS env variable.
// Format: "telegram_id:role:class_id,telegram_id:role:class_id"; class_id may
// be empty. Malformed entries are skipped with a warning.
func parseSeedMembers(s string) []SeedMember {
	if s == "" {
		return nil
	}
	seeds := make([]SeedMember, 0)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			log.Printf("config: invalid USERS entry %q", entry)
			continue
		}
		tid, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			log.Printf("config: invalid telegram id in USERS entry %q", entry)
			continue
		}
		role, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || role < 1 || role > 5 {
			log.Printf("config: invalid role in USERS entry %q", entry)
			continue
		}
		seed := SeedMember{TelegramID: tid, Role: role}
		if cls := strings.TrimSpace(parts[2]); cls != "" {
			cid, err := strconv.Atoi(cls)
			if err != nil {
				log.Printf("config: invalid class id in USERS entry %q", entry)
				continue
			}
			seed.ClassID = &cid
		}
		seeds = append(seeds, seed)
	}
	return seeds
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests...
// see: https://stackoverflow.com/questions/23847003/golang-tests-and-working-directory
func Getwd() string {
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

func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Debug: %t, DB: %s/%s}", c.Env, c.Debug, c.DatabaseAddress(), c.Database.Name)
}
