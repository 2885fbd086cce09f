package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/config"
	"github.com/mailgate/mailgate/internal/database"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/server"
)

func main() {
	app := &cli.App{
		Name:  "mailgate",
		Usage: "multi-tenant transactional email API",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, db, err := setup()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(db); err != nil {
						return err
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("MailGate starting up...")

					srv, err := server.NewServer(cfg, db)
					if err != nil {
						return err
					}
					return srv.Run()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewConnection(&database.DatabaseConfig{
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		DBName:          cfg.DatabaseConfig.DBName,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}

	return cfg, db, nil
}
