package main

import (
	"context"
	"database/sql"
	"fmt"

	bloodrequestservice "hemogrid/internal/bloodrequest/service"
	donationstore "hemogrid/internal/bloodrequest/store/donation"
	requeststore "hemogrid/internal/bloodrequest/store/request"
	donorservice "hemogrid/internal/donor/service"
	donorstore "hemogrid/internal/donor/store"
	notificationservice "hemogrid/internal/notification/service"
	notificationstore "hemogrid/internal/notification/store"
	"hemogrid/internal/platform/config"
	"hemogrid/internal/platform/postgres"
)

// storeSet is the persistence backing every service. Postgres when a
// database URL is configured, in-memory otherwise.
type storeSet struct {
	db            *sql.DB
	donors        donorservice.Store
	notifications notificationservice.Store
	requests      bloodrequestservice.RequestStore
	donations     bloodrequestservice.DonationStore
	tx            bloodrequestservice.StoreTx
}

func newStoreSet(ctx context.Context, cfg config.DatabaseConfig) (*storeSet, error) {
	if cfg.URL == "" {
		return &storeSet{
			donors:        donorstore.NewInMemory(),
			notifications: notificationstore.NewInMemory(),
			requests:      requeststore.NewInMemory(),
			donations:     donationstore.NewInMemory(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &storeSet{
		db:            db,
		donors:        donorstore.NewPostgres(db),
		notifications: notificationstore.NewPostgres(db),
		requests:      requeststore.NewPostgres(db),
		donations:     donationstore.NewPostgres(db),
		tx:            postgres.NewTxRunner(db, cfg.TxTimeout, cfg.LockTimeout),
	}, nil
}

// engineOptions leaves the transaction runner at its in-memory default when
// no database is configured.
func (s *storeSet) engineOptions() []bloodrequestservice.Option {
	if s.tx == nil {
		return nil
	}
	return []bloodrequestservice.Option{bloodrequestservice.WithTx(s.tx)}
}

func (s *storeSet) ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *storeSet) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
