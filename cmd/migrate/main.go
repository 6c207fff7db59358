package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/config"
	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/logging"
	"github.com/rpattn/canvass/internal/repository"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml and .env")
	direction := flag.String("direction", "up", "migration direction: up or down")
	seedOrg := flag.String("seed-org", "", "create an organization with this name after migrating up")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	base, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	logger := logrus.NewEntry(base).WithField("service", "migrate")

	if err := db.RunMigrations(cfg.Database.URL(), *direction); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
	logger.WithField("direction", *direction).Info("migrations applied")

	name := strings.TrimSpace(*seedOrg)
	if name == "" || *direction != "up" {
		return
	}

	ctx := context.Background()
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer conn.Close()

	orgs := repository.NewStore(conn.Pool, nil).Repos().Organizations
	org, err := orgs.GetByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		org, err = domain.NewOrganization(name, "")
		if err == nil {
			org, err = orgs.Create(ctx, org)
		}
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to seed organization")
	}
	logger.WithFields(logrus.Fields{"organization_id": org.ID, "name": org.Name}).Info("organization ready")
}
