package db

import (
	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/store"
	"github.com/mnemo-labs/mnemod/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// SQLite is the only backend: the service is a single-node local store and
// ships with its database embedded.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' is supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
