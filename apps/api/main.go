package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/beshoyehab/schoolbot/apps/api/echo"
	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
	broadcastsvc "github.com/beshoyehab/schoolbot/services/broadcast"
	logsvc "github.com/beshoyehab/schoolbot/services/logger"
	"github.com/beshoyehab/schoolbot/storage/database"
	sqlxrepos "github.com/beshoyehab/schoolbot/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	sqlxDB := sqlx.NewDb(db, conf.Database.Engine)

	// set up services
	var broadcastSvc core.BroadcastService
	if conf.Debug {
		broadcastSvc = broadcastsvc.NewConsoleService(conf)
	} else {
		broadcastSvc = broadcastsvc.NewSendgridService(conf, logger)
	}
	mbrSvc := member.NewService(db, sqlxrepos.NewMemberRepository(sqlxDB), conf)
	clsSvc := class.NewService(db, sqlxrepos.NewClassRepository(sqlxDB), mbrSvc)
	attSvc := attendance.NewService(db, sqlxrepos.NewAttendanceRepository(sqlxDB), conf)
	workspaces := attendance.NewManager(conf)
	confirmer := attendance.NewConfirmer(attSvc, workspaces, clsSvc, conf)

	// reap abandoned pending-edit workspaces; access already drops them lazily
	go func() {
		for range time.Tick(conf.SessionTimeout) {
			workspaces.Purge()
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)

	member.LoadCommonPasswords(logger)

	// provision the configured actors before the first request
	if err = mbrSvc.SyncSeed(context.Background(), conf.SeedMembers); err != nil {
		logger.Fatal(fmt.Sprintf("seeding members: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			MemberSvc:    mbrSvc,
			ClassSvc:     clsSvc,
			AttSvc:       attSvc,
			Workspaces:   workspaces,
			Confirmer:    confirmer,
			BroadcastSvc: broadcastSvc,
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
